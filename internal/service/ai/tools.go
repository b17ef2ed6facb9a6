package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const webSearchToolName = "web_search"

// searchProvider is one backend of the web_search tool, tried in order.
type searchProvider struct {
	name string
	tool tool.InvokableTool
}

// InitToolsChain returns the tools available to agents; empty when no
// search provider could be initialised.
func InitToolsChain() []tool.BaseTool {
	providers := searchProviders()
	if len(providers) == 0 {
		log.Printf("[ai] web search tool disabled: no search providers available")
		return nil
	}
	return []tool.BaseTool{newWebSearchTool(providers...)}
}

func searchProviders() []searchProvider {
	var providers []searchProvider
	if t := newGoogleSearch(); t != nil {
		providers = append(providers, searchProvider{name: "google", tool: t})
	}
	if t := newDuckDuckGoSearch(); t != nil {
		providers = append(providers, searchProvider{name: "duckduckgo", tool: t})
	}
	return providers
}

func newWebSearchTool(providers ...searchProvider) tool.InvokableTool {
	ws := &webSearchTool{
		providers: providers,
		fetcher:   &pageFetcher{client: &http.Client{Timeout: WebSearchHTTPTimeout}},
		limiter:   newWindowLimiter(WebSearchRateLimit, WebSearchRateWindow),
	}
	info := &schema.ToolInfo{
		Name: webSearchToolName,
		Desc: "Look up background material for the uploaded document. Accepts a search query, " +
			"or an http(s) URL whose page text is returned. " +
			fmt.Sprintf("At most %d calls per minute per session.", WebSearchRateLimit),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "search query or URL",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

type webSearchTool struct {
	providers []searchProvider
	fetcher   *pageFetcher
	limiter   *windowLimiter
}

type webSearchParams struct {
	Query string `json:"query"`
}

var errNoSearchResult = errors.New("no search provider succeeded")

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Query) == "" {
		return "", errors.New("query must not be empty")
	}
	query := strings.TrimSpace(params.Query)

	bucket := "global"
	if sessionID, ok := ToolSessionFromContext(ctx); ok {
		bucket = "session:" + sessionID
	}
	if w.limiter != nil && !w.limiter.Allow(bucket) {
		return "", fmt.Errorf("web search limited to %d calls per minute, retry later", WebSearchRateLimit)
	}

	if w.fetcher != nil && looksLikeURL(query) {
		text, err := w.fetcher.Text(ctx, query)
		if err == nil {
			return text, nil
		}
		log.Printf("[ai] fetch %s failed, falling back to search: %v", query, err)
	}

	args, err := json.Marshal(webSearchParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	for _, p := range w.providers {
		out, err := p.tool.InvokableRun(ctx, string(args))
		if err == nil {
			return out, nil
		}
		log.Printf("[ai] %s search failed: %v", p.name, err)
	}
	return "", errNoSearchResult
}

func newDuckDuckGoSearch() tool.InvokableTool {
	t, err := duckduckgo.NewTextSearchTool(context.Background(), &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo text search",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    WebSearchHTTPTimeout,
	})
	if err != nil {
		log.Printf("[ai] duckduckgo search disabled: %v", err)
		return nil
	}
	return t
}

// newGoogleSearch needs GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID.
func newGoogleSearch() tool.InvokableTool {
	apiKey, engineID := os.Getenv("GOOGLE_API_KEY"), os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		return nil
	}
	t, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google custom search",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("[ai] google search disabled: %v", err)
		return nil
	}
	return t
}

