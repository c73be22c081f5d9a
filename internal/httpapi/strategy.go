package httpapi

import "github.com/llmweaver/gateway/internal/domain"

// parseStrategyHeader maps the client-facing X-LB-Strategy header values
// (random|weighted|lowest_cost|performance) onto the internal
// domain.Strategy constants. An unrecognized or empty value means "use
// the Load Balancer's configured default."
func parseStrategyHeader(v string) domain.Strategy {
	switch v {
	case "random":
		return domain.StrategyRandom
	case "weighted":
		return domain.StrategyWeightedRandom
	case "lowest_cost":
		return domain.StrategyLowestCost
	case "performance":
		return domain.StrategyBestPerf
	default:
		return ""
	}
}
