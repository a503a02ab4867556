package agent

// Well-known task types. The registry is open; these are the types the
// built-in agents register under and the phase handlers spawn.
const (
	TypeAccessChecker   = "access_checker"
	TypeLinkCrawler     = "link_crawler"
	TypePageClassifier  = "page_classifier"
	TypeMemberExtractor = "member_extractor"
	TypeEventExtractor  = "event_extractor"
	TypeEnricher        = "firmographic_enricher"
	TypeQualityScorer   = "quality_scorer"
	TypeGraphBuilder    = "graph_builder"
	TypeExportGenerator = "export_generator"
)
