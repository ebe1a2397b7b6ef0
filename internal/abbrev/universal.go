package abbrev

// universalVocabulary pins the IRIs the SQL translator needs to reference
// as integer constants (rdf:type in a FILTER, rdfs:subClassOf in a path,
// …) to fixed low storids, known at compile time and bootstrapped into
// every fresh store. Ordering here is the allocation order; do not reorder
// without a migration, since it would change existing stores' ids.
var universalVocabulary = []string{
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#first",
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#rest",
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#nil",
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#Property",
	"http://www.w3.org/2000/01/rdf-schema#subClassOf",
	"http://www.w3.org/2000/01/rdf-schema#subPropertyOf",
	"http://www.w3.org/2000/01/rdf-schema#domain",
	"http://www.w3.org/2000/01/rdf-schema#range",
	"http://www.w3.org/2000/01/rdf-schema#label",
	"http://www.w3.org/2000/01/rdf-schema#comment",
	"http://www.w3.org/2002/07/owl#Thing",
	"http://www.w3.org/2002/07/owl#Nothing",
	"http://www.w3.org/2002/07/owl#Class",
	"http://www.w3.org/2002/07/owl#ObjectProperty",
	"http://www.w3.org/2002/07/owl#DatatypeProperty",
	"http://www.w3.org/2002/07/owl#AnnotationProperty",
	"http://www.w3.org/2002/07/owl#FunctionalProperty",
	"http://www.w3.org/2002/07/owl#equivalentClass",
	"http://www.w3.org/2002/07/owl#equivalentProperty",
	"http://www.w3.org/2002/07/owl#sameAs",
	"http://www.w3.org/2002/07/owl#differentFrom",
	"http://www.w3.org/2002/07/owl#intersectionOf",
	"http://www.w3.org/2002/07/owl#unionOf",
	"http://www.w3.org/2002/07/owl#complementOf",
	"http://www.w3.org/2002/07/owl#onProperty",
	"http://www.w3.org/2002/07/owl#someValuesFrom",
	"http://www.w3.org/2002/07/owl#allValuesFrom",
	"http://www.w3.org/2001/XMLSchema#string",
	"http://www.w3.org/2001/XMLSchema#integer",
	"http://www.w3.org/2001/XMLSchema#decimal",
	"http://www.w3.org/2001/XMLSchema#double",
	"http://www.w3.org/2001/XMLSchema#float",
	"http://www.w3.org/2001/XMLSchema#boolean",
	"http://www.w3.org/2001/XMLSchema#dateTime",
	"http://www.w3.org/2001/XMLSchema#date",
}

// FirstDynamicStorid is the first id available for non-universal resources.
// Reserve generous headroom above len(universalVocabulary) for future
// vocabulary growth without renumbering user resources.
const FirstDynamicStorid = 1000

// Well-known storids for IRIs the translator and normalizer reference
// directly, without a round trip through Abbreviate.
const (
	RDFType           = 1
	RDFFirst          = 2
	RDFRest           = 3
	RDFNil            = 4
	RDFProperty       = 5
	RDFSSubClassOf    = 6
	RDFSSubPropertyOf = 7
	RDFSDomain        = 8
	RDFSRange         = 9
	RDFSLabel         = 10
	RDFSComment       = 11
	OWLThing          = 12
	OWLNothing        = 13
	OWLClass          = 14
	OWLObjectProperty = 15
	OWLDataProperty   = 16
	OWLAnnotationProp = 17
	OWLFunctionalProp = 18
)
