package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/spirit/backend/internal/service/search"
)

// defaultMaxToolRounds bounds the number of tool round-trips in one turn.
const defaultMaxToolRounds = 3

const webSearchDescription = "Search the web for real-time or factual information. Use it whenever the user asks about current events, weather, prices or facts you are unsure about."

const webSearchQueryDescription = "The search query, in the user's language."

// toolRunner executes the locally implemented tools requested by a model.
type toolRunner struct {
	searcher search.Searcher
}

// run executes a single tool call. Failures are returned as text so the model can
// recover within the same turn.
func (r toolRunner) run(ctx context.Context, name, arguments string) string {
	switch Tool(name) {
	case ToolWebSearch:
		if r.searcher == nil {
			return "web search is not available right now."
		}
		query := strings.TrimSpace(gjson.Get(arguments, "query").String())
		if query == "" {
			return "web search needs a non-empty \"query\" argument."
		}
		results, err := r.searcher.Search(ctx, query)
		if err != nil {
			log.Warn().Err(err).Str("query", query).Msg("web search tool failed")
			return fmt.Sprintf("web search failed: %v", err)
		}
		return search.FormatResults(query, results)
	default:
		return fmt.Sprintf("unknown tool %q.", name)
	}
}
