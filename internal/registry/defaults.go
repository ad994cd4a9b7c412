package registry

import "time"

// buildDefaultAgents returns the baked-in registration set for the six
// ITOM agents the orchestrator coordinates out of the box. Populated only
// when the registry starts with no persisted state and defaults are
// enabled (see Registry.Initialize).
func buildDefaultAgents() []Registration {
	now := time.Now().UTC()

	return []Registration{
		{
			AgentID: "cmdb-agent",
			Name:    "CMDB Agent",
			Description: "Autonomous CMDB management agent (snow-cmdb-agent). " +
				"Full CMDB domain owner: CI queries across all cmdb_ci* types, " +
				"health metrics, duplicate/stale detection, IRE rules, relationship " +
				"mapping, impact analysis, remediation lifecycle, and autonomous workflows. " +
				"Runs on streamable-HTTP at http://localhost:8002/mcp.",
			Domain: DomainCMDB,
			Capabilities: []Capability{
				{
					Name:   "cmdb_read",
					Domain: DomainCMDB,
					Description: "Query and analyse configuration items across the full cmdb_ci hierarchy: " +
						"server, linux_server, win_server, database, application, network_gear, " +
						"storage_device, computer, service.",
					InputSchema: rawSchema(`{"type":"object","properties":{"ci_type":{"type":"string"},"query":{"type":"string"},"environment":{"type":"string"},"limit":{"type":"integer"}},"required":["ci_type"]}`),
				},
				{
					Name:   "cmdb_write",
					Domain: DomainCMDB,
					Description: "Remediate CMDB issues: create/monitor/execute/complete remediation " +
						"requests, run maintenance workflows, reconcile CI data.",
					InputSchema: rawSchema(`{"type":"object","properties":{"remediation_type":{"type":"string"},"risk_level":{"type":"string"},"affected_ci_sys_ids":{"type":"array","items":{"type":"string"}}},"required":["remediation_type","risk_level"]}`),
				},
				{
					Name:        "query_cis",
					Domain:      DomainCMDB,
					Description: "Query configuration items with filtering and pagination.",
					InputSchema: rawSchema(`{"type":"object","properties":{"ci_type":{"type":"string"},"query":{"type":"string"},"limit":{"type":"integer"}},"required":["ci_type"]}`),
				},
				{
					Name:        "map_relationships",
					Domain:      DomainCMDB,
					Description: "Map and traverse CI relationships, including dependency trees and impact analysis.",
				},
				{
					Name:   "cmdb_health_audit",
					Domain: DomainCMDB,
					Description: "Run health checks on CMDB data quality, staleness, duplicates, " +
						"orphaned CIs, and IRE rules across all CI types.",
				},
				{
					Name:        "bulk_ci_operations",
					Domain:      DomainCMDB,
					Description: "Perform bulk maintenance operations on CIs via autonomous workflows.",
				},
			},
			Endpoint:     "http://localhost:8002/mcp",
			Status:       StatusOnline,
			RegisteredAt: now,
			Metadata:     map[string]any{"project": "snow-cmdb-agent", "version": "2.0.0", "port": 8002},
		},
		{
			AgentID: "discovery-agent",
			Name:    "Discovery Agent",
			Description: "ServiceNow Discovery automation agent. Manages discovery schedules, " +
				"scans, CI reconciliation, credential management, and pattern-based " +
				"classification of discovered infrastructure.",
			Domain: DomainDiscovery,
			Capabilities: []Capability{
				{
					Name:        "run_discovery_scan",
					Domain:      DomainDiscovery,
					Description: "Trigger a discovery scan for a specific IP range or schedule.",
					InputSchema: rawSchema(`{"type":"object","properties":{"ip_range":{"type":"string"},"schedule_id":{"type":"string"},"scan_type":{"type":"string","enum":["full","incremental"]}}}`),
				},
				{
					Name:        "get_discovery_status",
					Domain:      DomainDiscovery,
					Description: "Check the status and results of a running or completed discovery scan.",
				},
				{
					Name:        "reconcile_discovered_cis",
					Domain:      DomainDiscovery,
					Description: "Reconcile discovered CIs with existing CMDB records.",
				},
				{
					Name:        "manage_discovery_schedules",
					Domain:      DomainDiscovery,
					Description: "Create, update, or delete discovery schedules.",
				},
			},
			Status:       StatusOffline,
			RegisteredAt: now,
			Metadata:     map[string]any{"project": "snow-discovery-agent", "version": "0.1.0"},
		},
		{
			AgentID: "asset-agent",
			Name:    "Asset Agent",
			Description: "ServiceNow IT Asset Management agent. Handles asset lifecycle, " +
				"inventory tracking, contract and license management, hardware " +
				"and software asset reconciliation.",
			Domain: DomainAsset,
			Capabilities: []Capability{
				{
					Name:        "query_assets",
					Domain:      DomainAsset,
					Description: "Query IT assets with filtering by type, status, assignment, and location.",
					InputSchema: rawSchema(`{"type":"object","properties":{"asset_type":{"type":"string","enum":["hardware","software","consumable"]},"status":{"type":"string"},"assigned_to":{"type":"string"}}}`),
				},
				{
					Name:        "manage_asset_lifecycle",
					Domain:      DomainAsset,
					Description: "Track and manage asset lifecycle from procurement to retirement.",
				},
				{
					Name:        "reconcile_assets",
					Domain:      DomainAsset,
					Description: "Reconcile asset records with CMDB CIs and discovery data.",
				},
				{
					Name:        "license_compliance_check",
					Domain:      DomainAsset,
					Description: "Check software license compliance and usage against entitlements.",
				},
			},
			Status:       StatusOffline,
			RegisteredAt: now,
			Metadata:     map[string]any{"project": "snow-asset-agent", "version": "0.1.0"},
		},
		{
			AgentID: "csa-agent",
			Name:    "CSA Agent",
			Description: "ServiceNow Certified System Administrator agent. Manages service " +
				"catalog items, workflows, request fulfillment, and system " +
				"administration remediation tasks.",
			Domain: DomainCSA,
			Capabilities: []Capability{
				{
					Name:        "manage_catalog_items",
					Domain:      DomainCSA,
					Description: "Create, update, and configure service catalog items and categories.",
				},
				{
					Name:        "manage_workflows",
					Domain:      DomainCSA,
					Description: "Create, update, and monitor workflow definitions and executions.",
				},
				{
					Name:        "fulfill_requests",
					Domain:      DomainCSA,
					Description: "Process and fulfill service requests through the request pipeline.",
				},
				{
					Name:        "run_remediation",
					Domain:      DomainCSA,
					Description: "Execute system administration remediation tasks from the catalog.",
				},
			},
			Status:       StatusOffline,
			RegisteredAt: now,
			Metadata:     map[string]any{"project": "snow-csa-agent", "version": "0.1.0"},
		},
		{
			AgentID: "itom-auditor",
			Name:    "ITOM Auditor",
			Description: "Read-only governance and compliance auditor for the ITOM suite. " +
				"Performs cross-agent audits, compliance checks, configuration " +
				"drift detection, and generates audit reports.",
			Domain: DomainAudit,
			Capabilities: []Capability{
				{
					Name:        "run_compliance_audit",
					Domain:      DomainAudit,
					Description: "Run a comprehensive compliance audit across ITOM components.",
				},
				{
					Name:        "detect_configuration_drift",
					Domain:      DomainAudit,
					Description: "Detect configuration drift between expected and actual states.",
				},
				{
					Name:        "generate_audit_report",
					Domain:      DomainAudit,
					Description: "Generate structured audit reports in markdown or JSON format.",
				},
				{
					Name:        "check_policy_compliance",
					Domain:      DomainAudit,
					Description: "Validate actions and configurations against defined policies.",
				},
			},
			Status:       StatusOffline,
			RegisteredAt: now,
			Metadata:     map[string]any{"project": "snow-itom-auditor", "version": "0.1.0"},
		},
		{
			AgentID: "itom-documentator",
			Name:    "ITOM Documentator",
			Description: "Read-only documentation and knowledge management agent. " +
				"Generates technical documentation, runbooks, architecture " +
				"diagrams, and maintains the ITOM knowledge base.",
			Domain: DomainDocumentation,
			Capabilities: []Capability{
				{
					Name:        "generate_documentation",
					Domain:      DomainDocumentation,
					Description: "Generate technical documentation for ITOM components and workflows.",
				},
				{
					Name:        "create_runbook",
					Domain:      DomainDocumentation,
					Description: "Create operational runbooks for common ITOM procedures.",
				},
				{
					Name:        "update_knowledge_base",
					Domain:      DomainDocumentation,
					Description: "Update the ITOM knowledge base with new findings and procedures.",
				},
				{
					Name:        "generate_architecture_diagram",
					Domain:      DomainDocumentation,
					Description: "Generate architecture and relationship diagrams for ITOM infrastructure.",
				},
			},
			Status:       StatusOffline,
			RegisteredAt: now,
			Metadata:     map[string]any{"project": "snow-itom-documentator", "version": "0.1.0"},
		},
	}
}

func rawSchema(s string) []byte { return []byte(s) }
