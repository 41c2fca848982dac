package gate

import "github.com/gonkalabs/safeguard-go/internal/taxonomy"

// blocklist is the curated adult-site list. A hit is always an nsfw block.
var blocklist = []string{
	"pornhub.com",
	"xvideos.com",
	"xnxx.com",
	"xhamster.com",
	"redtube.com",
	"youporn.com",
	"tube8.com",
	"spankbang.com",
	"brazzers.com",
	"chaturbate.com",
	"onlyfans.com",
	"livejasmin.com",
}

// hostPatterns are substring heuristics on the hostname, per category.
var hostPatterns = map[taxonomy.Category][]string{
	taxonomy.NSFW:     {"porn", "xxx", "adult", "nsfw"},
	taxonomy.Violence: {"gore", "violence", "fight", "liveleak"},
	taxonomy.Suicide:  {"suicide", "selfharm", "self-harm", "killmyself"},
}

// searchEngines are matched against the hostname by dot-suffix.
var searchEngines = []string{
	"google.com",
	"bing.com",
	"yahoo.com",
	"duckduckgo.com",
	"yandex.com",
	"yandex.ru",
	"baidu.com",
}

// queryParams are tried in order; the first non-empty value is the query.
var queryParams = []string{"q", "query", "search", "p", "text"}
