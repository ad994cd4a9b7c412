package router

import "github.com/itom-platform/orchestrator/internal/registry"

// buildDefaultRules returns the default ITOM routing rule set, transcribed
// from the original router's keyword tables.
func buildDefaultRules() []Rule {
	return []Rule{
		// Higher-priority CMDB rule for CI-specific compliance checks.
		// "compliance check" in a CI/database/server context is a CMDB
		// health operation, distinct from governance compliance reports
		// (audit domain). Priority 5 < 10 ensures cmdb wins with no
		// ambiguity.
		{
			Name:     "cmdb-ci-compliance",
			Priority: 5,
			Domain:   registry.DomainCMDB,
			Keywords: []string{
				"compliance check on",
				"check compliance for",
				"check compliance of",
			},
		},
		{
			Name:     "cmdb-domain",
			Priority: 10,
			Domain:   registry.DomainCMDB,
			Keywords: []string{
				"cmdb", "configuration item", "ci ", "relationship",
				"server", "database", "application",
				"infrastructure", "duplicate", "stale", "health",
				"dashboard", "metrics", "operational",
				"impact", "dependency", "dependencies",
				"ire", "reconcile", "remediate", "history of",
				"change history", "get history", "ci history",
				"ci type", "ci class", "data quality",
				"eol", "end of life", "lifecycle", "criticality", "production",
				"missing serial", "without serial", "missing owner",
			},
		},
		{
			Name:     "discovery-domain",
			Priority: 10,
			Domain:   registry.DomainDiscovery,
			Keywords: []string{"discovery", "scan", "discover", "ip range"},
		},
		{
			Name:     "asset-domain",
			Priority: 10,
			Domain:   registry.DomainAsset,
			Keywords: []string{
				"asset", "asset inventory", "asset management",
				"hardware asset", "hardware inventory", "hardware list",
				"software asset", "software inventory",
				"license inventory", "license management", "license compliance",
			},
		},
		// CSA handles service catalog, request creation, and workflow
		// diagrams. Priority 9 (higher than asset at 10) so
		// "create/submit/open + request" beats the bare "hardware"
		// keyword in asset-domain.
		{
			Name:     "csa-domain",
			Priority: 9,
			Domain:   registry.DomainCSA,
			Keywords: []string{
				"request", "service catalog", "catalog item", "catalog request",
				"create a request", "create request", "new request",
				"submit a request", "submit request", "open a request", "open request",
				"raise a request", "raise request", "service request",
				"catalog", "remediation",
				"workflow", "fulfillment workflow", "approval workflow",
				"request approval", "approval process",
				"flowchart", "flow chart", "pipeline flow", "request flow",
				"workflow diagram", "process diagram", "show me how",
				"how does the", "explain the process",
			},
		},
		{
			Name:     "audit-domain",
			Priority: 10,
			Domain:   registry.DomainAudit,
			Keywords: []string{"audit", "compliance", "drift", "policy"},
		},
		{
			Name:     "documentation-domain",
			Priority: 10,
			Domain:   registry.DomainDocumentation,
			Keywords: []string{"document", "runbook", "knowledge base", "architecture diagram"},
		},
		// Fallback: route generic search/query messages to CMDB as the
		// default data-lookup agent in the ITOM suite.
		{
			Name:     "cmdb-search-fallback",
			Priority: 50,
			Domain:   registry.DomainCMDB,
			Keywords: []string{
				"search", "find", "look up", "query", "show me", "list", "count", "how many",
				"which ones", "which of", "filter", "filter to", "sort by", "group by",
				"only show", "just show", "now show", "also show",
				"missing", "without", "no owner", "no serial", "no os",
				"production only", "dev only", "staging only",
				"more details", "tell me more", "what about",
			},
		},
	}
}

// domainPairKey canonicalizes an unordered pair of domains into a lookup
// key for clarificationTemplates.
type domainPairKey struct {
	a, b string
}

func pairKey(a, b string) domainPairKey {
	if a > b {
		a, b = b, a
	}
	return domainPairKey{a, b}
}

type clarificationTemplate struct {
	Question string
	Options  []string
}

// clarificationTemplates maps competing domain pairs to a question and
// option set to present the user. Authored for this module -- the
// original implementation referenced this table but never defined it.
// fallback holds the catch-all template used when no specific pair
// matches.
var clarificationTemplates = map[domainPairKey]clarificationTemplate{
	pairKey("cmdb", "csa"): {
		Question: "Are you looking up information in the CMDB, or creating a service request?",
		Options:  []string{"Query CMDB", "Create a service request"},
	},
	pairKey("cmdb", "asset"): {
		Question: "Is this about configuration items in the CMDB, or asset/license inventory?",
		Options:  []string{"Query CMDB", "Query asset inventory"},
	},
	pairKey("cmdb", "discovery"): {
		Question: "Do you want to query existing CMDB data, or run a discovery scan?",
		Options:  []string{"Query CMDB", "Run discovery scan"},
	},
	pairKey("csa", "asset"): {
		Question: "Do you want to submit a service request, or check asset inventory?",
		Options:  []string{"Submit service request", "Check asset inventory"},
	},
	pairKey("cmdb", "audit"): {
		Question: "Is this a CMDB data-quality question, or a compliance/audit question?",
		Options:  []string{"Query CMDB", "Query compliance/audit"},
	},
	pairKey("cmdb", "documentation"): {
		Question: "Do you want CMDB data, or documentation/runbooks?",
		Options:  []string{"Query CMDB", "Look up documentation"},
	},
}

var clarificationFallback = clarificationTemplate{
	Question: "Which area should handle this request?",
	Options: []string{
		"CMDB", "Discovery", "Asset management", "Service catalog/requests", "Audit/compliance",
	},
}
