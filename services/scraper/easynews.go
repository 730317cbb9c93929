package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const easynewsSearchURL = "https://members.easynews.com/2.0/search/solr-search/advanced"

// ErrEasynewsCredentials marks a 401 from Easynews. It is the one scraper
// error the aggregate surfaces to the caller instead of swallowing, since it
// means the account is misconfigured rather than the upstream being flaky.
var ErrEasynewsCredentials = errors.New("easynews rejected credentials")

// reEasynewsJunkPrefix drops obfuscated-prefix posts ("abc123xyz-Title...")
// that pollute Easynews results.
var reEasynewsJunkPrefix = regexp.MustCompile(`^[a-z0-9]{12,}[-_.]`)

// Easynews searches the Easynews global index. Results are direct HTTP
// streams on the member farm; the credentials ride inside the candidate
// payload so the resolver can build the authenticated URL on click.
type Easynews struct {
	name     string
	username string
	password string
	client   *fetch.Client
}

func NewEasynews(client *fetch.Client, username, password, name string) *Easynews {
	return &Easynews{
		name:     strings.TrimSpace(name),
		username: username,
		password: password,
		client:   client,
	}
}

func (e *Easynews) Name() string {
	if e.name != "" {
		return e.name
	}
	return "easynews"
}

func (e *Easynews) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if e.username == "" || e.password == "" || strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("st", "adv")
	params.Set("sb", "1")
	params.Set("fex", "m4v,3gp,mov,divx,xvid,wmv,avi,mpg,mpeg,mp4,mkv,avc,flv,webm")
	params.Set("fty[]", "VIDEO")
	params.Set("spamf", "1") // hide flagged spam
	params.Set("u", "1")     // dedupe
	params.Set("gx", "1")    // hide adult groups
	params.Set("pno", "1")
	params.Set("sS", "3")
	params.Set("s1", "dsize")
	params.Set("s1d", "-")
	params.Set("pby", "350")
	params.Set("safeO", "0")
	params.Set("gps", req.Query)

	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(e.username+":"+e.password))
	resp, err := e.client.Get(ctx, easynewsSearchURL+"?"+params.Encode(), map[string]string{
		"Authorization": auth,
		"Accept":        "application/json",
	})
	if err != nil {
		markTiming(req.LogContext, e.Name(), 0, start)
		return nil, fmt.Errorf("easynews search: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		fetch.Discard(resp)
		markTiming(req.LogContext, e.Name(), 0, start)
		return nil, ErrEasynewsCredentials
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, e.Name(), 0, start)
		return nil, fmt.Errorf("easynews returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 16<<20)
	if err != nil {
		markTiming(req.LogContext, e.Name(), 0, start)
		return nil, err
	}

	var payload struct {
		DLFarm  string `json:"dlFarm"`
		DLPort  any    `json:"dlPort"`
		DownURL string `json:"downURL"`
		Data    []struct {
			Hash     string `json:"0"` // post hash
			Ext      string `json:"2"` // file extension with dot
			Size     any    `json:"4"` // human string or bytes
			Duration string `json:"14"`
			Subject  string `json:"10"`
			Passwd   any    `json:"passwd"`
			Virus    any    `json:"virus"`
			RawSize  int64  `json:"rawSize"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		markTiming(req.LogContext, e.Name(), 0, start)
		return nil, fmt.Errorf("decode easynews response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(payload.Data))
	for _, item := range payload.Data {
		title := strings.TrimSpace(item.Subject)
		if title == "" || item.Hash == "" {
			continue
		}
		if asBool(item.Passwd) || asBool(item.Virus) {
			continue
		}
		if reEasynewsJunkPrefix.MatchString(strings.ToLower(title)) {
			continue
		}
		size := item.RawSize
		if size == 0 {
			size = asInt64(item.Size)
		}
		if size == 0 {
			if s, ok := item.Size.(string); ok {
				size = parseHumanSize(s)
			}
		}
		candidates = append(candidates, models.NewHTTPStreamCandidate(models.HTTPStreamCandidate{
			DisplayName: title,
			Quality:     models.QualityFromTitle(title),
			SizeHuman:   humanSize(size),
			SizeBytes:   size,
			Provider:    "easynews",
			Languages:   filter.DetectLanguages(title),
			Payload: map[string]string{
				"username":  e.username,
				"password":  e.password,
				"dlFarm":    payload.DLFarm,
				"dlPort":    fmt.Sprint(asInt64(payload.DLPort)),
				"postHash":  item.Hash,
				"ext":       item.Ext,
				"postTitle": title,
				"downURL":   payload.DownURL,
			},
			NeedsResolution: true,
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, e.Name(), len(out), start)
	return out, nil
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		return b == "1" || strings.EqualFold(b, "true")
	}
	return false
}
