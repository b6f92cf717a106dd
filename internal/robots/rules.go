package robots

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Rules is a parsed robots.txt.
type Rules struct {
	Groups []Group
}

// Group is one user-agent block.
type Group struct {
	Agents     []string
	Allow      []Pattern
	Disallow   []Pattern
	CrawlDelay time.Duration
}

// Pattern is a compiled Allow/Disallow path with '*' and '$' support.
type Pattern struct {
	Raw         string
	re          *regexp.Regexp
	specificity int
}

func compilePattern(raw string) Pattern {
	anchored := strings.HasSuffix(raw, "$")
	body := strings.TrimSuffix(raw, "$")
	parts := strings.Split(body, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := "^" + strings.Join(parts, ".*")
	if anchored {
		expr += "$"
	}
	return Pattern{
		Raw:         raw,
		re:          regexp.MustCompile(expr),
		specificity: len(strings.ReplaceAll(body, "*", "")),
	}
}

func (p Pattern) matches(path string) bool { return p.re != nil && p.re.MatchString(path) }

// AllowAll is the rule set used when a host publishes no robots.txt.
func AllowAll() Rules { return Rules{} }

// DisallowAll blocks every path for every agent.
func DisallowAll() Rules {
	return Rules{Groups: []Group{{Agents: []string{"*"}, Disallow: []Pattern{compilePattern("/")}}}}
}

// Parse reads robots.txt text. Unknown directives are ignored.
func Parse(text string) Rules {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var groups []Group
	var cur Group
	sawRule := false
	flush := func() {
		if len(cur.Agents) > 0 {
			groups = append(groups, cur)
		}
		cur = Group{}
		sawRule = false
	}
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		switch key {
		case "user-agent", "useragent":
			if sawRule {
				flush()
			}
			cur.Agents = append(cur.Agents, strings.ToLower(val))
		case "allow":
			sawRule = true
			if val != "" {
				cur.Allow = append(cur.Allow, compilePattern(val))
			}
		case "disallow":
			sawRule = true
			if val != "" {
				cur.Disallow = append(cur.Disallow, compilePattern(val))
			}
		case "crawl-delay", "crawldelay":
			sawRule = true
			if secs, err := strconv.ParseFloat(val, 64); err == nil && secs > 0 {
				cur.CrawlDelay = time.Duration(secs * float64(time.Second))
			}
		}
	}
	flush()
	return Rules{Groups: groups}
}

// Allowed reports whether path (with optional query) may be fetched by
// userAgent. The most specific matching directive wins; Allow wins ties.
func (r Rules) Allowed(userAgent, path string) bool {
	g, ok := r.group(userAgent)
	if !ok {
		return true
	}
	best, allow := -1, true
	for _, p := range g.Disallow {
		if p.matches(path) && p.specificity > best {
			best, allow = p.specificity, false
		}
	}
	for _, p := range g.Allow {
		if p.matches(path) && p.specificity >= best {
			best, allow = p.specificity, true
		}
	}
	return allow
}

// CrawlDelay returns the delay of the group matching userAgent, or zero.
func (r Rules) CrawlDelay(userAgent string) time.Duration {
	g, ok := r.group(userAgent)
	if !ok {
		return 0
	}
	return g.CrawlDelay
}

// group picks the group whose agent token is the longest substring of
// userAgent; "*" matches with the lowest priority.
func (r Rules) group(userAgent string) (Group, bool) {
	ua := strings.ToLower(userAgent)
	best, bestScore := -1, -1
	for i, g := range r.Groups {
		for _, a := range g.Agents {
			score := -1
			switch {
			case a == "*":
				score = 0
			case a != "" && strings.Contains(ua, a):
				score = len(a)
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
	}
	if best < 0 {
		return Group{}, false
	}
	return r.Groups[best], true
}
