// Package e2e runs the retrieval pipeline end to end against a corpus of
// handbook-style documents, both ingested directly and read back from files.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/models"
)

// E2EDocument is one corpus entry. SourceID doubles as the base file name
// (without extension) in the file-based tests.
type E2EDocument struct {
	SourceID string
	Title    string
	Content  string
}

// QueryTestCase pairs a query with the source ID(s) that must show up in the
// retrieved results. At least one of ExpectedSourceIDs has to appear.
type QueryTestCase struct {
	Query             string
	ExpectedSourceIDs []string
	Description       string
}

// Corpus holds the documents and query cases shared by the e2e tests.
type Corpus struct {
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// BuildCorpus returns the full corpus. Every document carries a signature
// phrase that appears nowhere else, so each query case can assert the right
// document came back rather than just any document.
func BuildCorpus() *Corpus {
	docs := buildDocuments()
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

func buildDocuments() []E2EDocument {
	return []E2EDocument{
		{"getting-started", "Getting Started", "New engineers clone the platform repo on day one. The developer bootstrap script installs toolchains, git hooks and the local service mesh."},
		{"python-style", "Python Style Guide", "All Python services format with black and isort. Python type annotations are required on public functions and checked in CI."},
		{"go-services", "Go Service Layout", "Go services keep handlers thin and logic in internal packages. Bounded goroutine worker pools drain job queues so memory stays flat."},
		{"kubernetes-ops", "Kubernetes Operations", "Workloads run on the shared Kubernetes clusters. Kubernetes pod eviction fires when a node reports memory pressure, so set resource requests honestly."},
		{"postgres-tuning", "Postgres Tuning", "Primary databases run Postgres with conservative defaults. We lower the autovacuum thresholds on hot tables so dead tuples never accumulate."},
		{"redis-caching", "Redis Caching", "Session data lives in Redis with short TTLs. Redis cache eviction uses allkeys-lru, so nothing stored there may be the only copy."},
		{"kafka-pipelines", "Kafka Pipelines", "Event streams flow through Kafka topics with three replicas. Kafka consumer lag above five minutes pages the owning team."},
		{"docker-builds", "Docker Builds", "Images are built in CI, never on laptops. Our multi-stage image builds keep the final layer to the binary and its certificates."},
		{"terraform-modules", "Terraform Modules", "All cloud resources are declared in shared modules. Remote Terraform state locking prevents two applies from racing on one workspace."},
		{"prometheus-alerts", "Prometheus Alerts", "Every service exports scrape targets automatically. Prometheus alert rules live next to the code they watch and are reviewed like code."},
		{"grafana-dashboards", "Grafana Dashboards", "Dashboards are JSON in the repo, not hand edits. Grafana dashboard provisioning reloads them on merge so drift cannot happen."},
		{"nginx-ingress", "Nginx Ingress", "Edge traffic terminates at the Nginx tier. Nginx ingress rewrite rules strip the legacy path prefix before routing to services."},
		{"rest-guidelines", "REST Guidelines", "Public APIs use plural nouns and nested resources. REST endpoint naming never encodes verbs; the method carries the action."},
		{"grpc-internal", "Internal gRPC APIs", "Service-to-service calls use gRPC with protobuf contracts. gRPC deadline propagation is mandatory so a slow leaf cannot pin the whole graph."},
		{"graphql-gateway", "GraphQL Gateway", "The public graph fronts a dozen services. GraphQL schema stitching merges their subgraphs at the gateway during deploy."},
		{"oauth-flows", "OAuth Flows", "Third-party integrations authenticate with OAuth. The OAuth refresh token grant rotates tokens silently before the access token expires."},
		{"jwt-claims", "JWT Claims", "Internal tokens are short-lived JWTs. JWT claim validation checks issuer, audience and expiry before any handler runs."},
		{"tls-rotation", "TLS Rotation", "Certificates come from the internal CA. The certificate rotation schedule renews everything at two thirds of its lifetime."},
		{"secrets-vault", "Secrets Handling", "No credentials in code or CI variables. Vault secret leases expire within an hour, and services renew them in the background."},
		{"rbac-matrix", "Access Control", "Production access is least-privilege by default. The role permission matrix maps each team role to the exact verbs it may call."},
		{"incident-runbook", "Incident Runbook", "Declare early, downgrade later. The incident severity levels run from SEV4 noise to SEV1 outage, and each level names its commander."},
		{"oncall-handover", "On-Call Handover", "Shifts rotate Monday mornings. The handover checklist walks open incidents, muted alerts and risky deploys before the pager moves."},
		{"postmortems", "Post-Mortems", "Every SEV2 or worse gets a writeup within a week. The blameless postmortem template asks what the system made easy, not who slipped."},
		{"slo-policy", "SLO Policy", "Each service declares availability and latency objectives. The error budget policy freezes risky deploys once the budget for the quarter burns down."},
		{"chaos-drills", "Chaos Drills", "Resilience is tested, not assumed. Quarterly fault injection drills kill dependencies in staging and verify fallbacks actually engage."},
		{"backup-restore", "Backups", "Databases snapshot hourly to object storage. The snapshot restore procedure is rehearsed monthly; an untested backup does not count."},
		{"disaster-recovery", "Disaster Recovery", "We survive the loss of a region. The regional failover plan promotes the warm standby and repoints DNS inside fifteen minutes."},
		{"schema-migrations", "Schema Migrations", "Migrations ship separately from the code that needs them. We default to reversible schema migrations; destructive ones need a sign-off."},
		{"feature-flags", "Feature Flags", "Deploy is not release. Every feature flag rollout starts at one percent of traffic and doubles only after the dashboards stay quiet."},
		{"canary-deploys", "Canary Deploys", "New builds soak before they spread. The canary traffic percentage starts at five and is compared against the stable fleet's error rate."},
		{"blue-green", "Blue-Green Deploys", "Two identical environments take turns serving. The blue-green cutover flips the load balancer and keeps the idle side warm for instant rollback."},
		{"ci-pipeline", "CI Pipeline", "Builds must finish inside ten minutes. The pipeline cache strategy keys on lockfile hashes so dependency downloads are almost always warm."},
		{"code-review", "Code Review", "Nothing merges without a second pair of eyes. The review approval rules require one owner of each touched package and a green build."},
		{"branching-model", "Branching Model", "Long-lived branches rot. We practice trunk based development: main stays releasable and unfinished work hides behind flags."},
		{"release-train", "Release Train", "Releases leave on schedule, not when features are ready. The release train cadence is Tuesday and Thursday at noon, holidays excepted."},
		{"api-deprecation", "API Deprecation", "Breaking changes need a long runway. The deprecation window policy gives external callers two major versions of warning headers."},
		{"rate-limits", "Rate Limits", "The edge protects the core. The edge enforces per-tenant rate limits with a token bucket per API key; burst is twice the sustained rate."},
		{"retry-policy", "Retry Policy", "Naive retries amplify outages. We use exponential backoff with jitter capped at thirty seconds, and only idempotent calls retry at all."},
		{"circuit-breakers", "Circuit Breakers", "Failing fast beats queueing forever. The circuit breaker trip threshold is half the calls in a rolling ten-second window."},
		{"load-testing", "Load Testing", "Capacity claims need receipts. The load test scenarios replay sanitized production traffic at twice the seasonal peak."},
		{"profiling-guide", "Profiling Guide", "Guessing at hot spots wastes weeks. Continuous CPU profile sampling runs at one percent overhead and ships flame graphs nightly."},
		{"logging-standards", "Logging Standards", "Logs are for machines first. Our structured logging fields use snake_case keys, and request IDs stitch lines across services."},
		{"tracing-guide", "Distributed Tracing", "One request, one trace, many spans. Standard trace span attributes carry tenant, region and build hash so latency slices cleanly."},
		{"metrics-naming", "Metrics Naming", "Metrics are a contract with dashboards. Keep metric label cardinality low; user IDs and request IDs never become labels."},
		{"data-retention", "Data Retention", "Storage is cheap until legal asks. The retention period defaults are ninety days for logs and one year for aggregates."},
		{"privacy-deletion", "Privacy Deletion", "Deletion is a feature with an SLA. We honor subject erasure requests by purging primary rows, replicas and caches within thirty days."},
		{"encryption-rest", "Encryption at Rest", "Plaintext volumes are an incident waiting to happen. The disk encryption keys live in the KMS and rotate yearly without downtime."},
		{"supply-chain", "Supply Chain", "Builds must be traceable to source. CI performs artifact signing and attestation, and deploys verify signatures before rollout."},
		{"dependency-updates", "Dependency Updates", "Stale dependencies are unpatched vulnerabilities. The automated dependency bumps arrive as weekly pull requests, and security patches merge the same day."},
		{"onboarding-week", "Onboarding Week", "Day one should end with a deployed change. The laptop enrollment steps finish before lunch, and the starter task ships by Friday."},
		{"docs-style", "Writing Documentation", "Readers skim; write for that. The documentation style guide bans future tense and walls of text, one idea per paragraph."},
		{"search-service", "Search Service", "Lookup is read-heavy and latency-bound. The inverted index shards split by tenant and rebalance during the nightly low."},
		{"embedding-service", "Embedding Service", "Text becomes vectors in one place only. The sentence embedding batches cap at thirty-two inputs to keep tail latency flat."},
		{"vector-store", "Vector Store", "Nearest-neighbour lookups back the recommender. The cosine similarity cutoff drops matches below 0.25 instead of padding results with noise."},
		{"chunking-notes", "Chunking Notes", "Long documents answer badly as one blob. The chunk window overlap keeps a fifth of each window shared so sentences survive the split."},
		{"answer-quality", "Answer Quality", "Grounded answers cite their sources. The hallucination audit checklist samples answers weekly and traces every claim back to a fragment."},
	}
}

// buildQueryTestCases maps each signature phrase to the first document whose
// title or content contains it verbatim. Phrases that match nothing produce
// no case, so a corpus edit cannot silently break the mapping.
func buildQueryTestCases(docs []E2EDocument) []QueryTestCase {
	phrases := []string{
		"developer bootstrap script",
		"goroutine worker pools",
		"Kubernetes pod eviction",
		"autovacuum thresholds",
		"Redis cache eviction",
		"Kafka consumer lag",
		"Terraform state locking",
		"Prometheus alert rules",
		"Grafana dashboard provisioning",
		"Nginx ingress rewrite rules",
		"gRPC deadline propagation",
		"GraphQL schema stitching",
		"OAuth refresh token grant",
		"JWT claim validation",
		"certificate rotation schedule",
		"Vault secret leases",
		"role permission matrix",
		"incident severity levels",
		"blameless postmortem template",
		"error budget policy",
		"fault injection drills",
		"snapshot restore procedure",
		"regional failover plan",
		"feature flag rollout",
		"canary traffic percentage",
		"blue-green cutover",
		"trunk based development",
		"exponential backoff with jitter",
		"metric label cardinality",
		"subject erasure requests",
		"inverted index shards",
		"cosine similarity cutoff",
		"hallucination audit checklist",
	}

	var cases []QueryTestCase
	used := make(map[string]bool)
	for _, p := range phrases {
		for _, d := range docs {
			if containsPhrase(d, p) && !used[d.SourceID] {
				cases = append(cases, QueryTestCase{
					Query:             p,
					ExpectedSourceIDs: []string{d.SourceID},
					Description:       fmt.Sprintf("query %q finds %s", p, d.SourceID),
				})
				used[d.SourceID] = true
				break
			}
		}
	}
	return cases
}

func containsPhrase(d E2EDocument, phrase string) bool {
	return strings.Contains(d.Title, phrase) || strings.Contains(d.Content, phrase)
}

// ToFragments chunks every document under its source ID, title first so it
// lands in the same fragment as the opening sentences.
func (c *Corpus) ToFragments(ch *chunker.Chunker) []models.Fragment {
	var fragments []models.Fragment
	for _, d := range c.Documents {
		fragments = append(fragments, ch.Split(d.Title+"\n\n"+d.Content, d.SourceID)...)
	}
	return fragments
}
