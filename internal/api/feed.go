package api

import (
	"encoding/xml"
	"html"
	"math/rand/v2"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type cdata struct {
	Text string `xml:",cdata"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       cdata  `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate,omitempty"`
	Description cdata  `xml:"description"`
}

type rssChannel struct {
	AtomLink      atomLink  `xml:"atom:link"`
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Atom    string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

// baseURL is the configured public URL, or one derived from the request.
func (s *Server) baseURL(c echo.Context) string {
	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/")
	}
	return c.Scheme() + "://" + c.Request().Host
}

// rssFeed renders a mailbox as an RSS 2.0 feed, one item per message.
func (s *Server) rssFeed(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return c.String(http.StatusNotFound, "Error: Email not found")
	}
	list, err := s.store.List(email, true)
	if err != nil {
		return s.storeError(c, err, "Email not found")
	}

	base := s.baseURL(c)
	feed := rssDocument{
		Version: "2.0",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: rssChannel{
			AtomLink:      atomLink{Href: base + "/rss/" + email, Rel: "self", Type: "application/rss+xml"},
			Title:         "RSS for " + email,
			Link:          base + "/json/" + email,
			Description:   "RSS Feed for email address " + email,
			LastBuildDate: time.Now().UTC().Format(time.RFC1123Z),
		},
	}

	for _, m := range list {
		var rcpts []string
		var htmlBody string
		if rec, err := s.store.Get(email, m.ID); err == nil {
			rcpts = rec.Rcpts
			htmlBody = rec.Parsed.HTMLBody
		}

		var desc strings.Builder
		desc.WriteString("Email from: " + html.EscapeString(m.From) + "<br/>")
		desc.WriteString("Email to: " + html.EscapeString(strings.Join(rcpts, ";")) + "<br/>")
		for _, link := range m.Attachments {
			desc.WriteString(`Attachment: <a href="` + html.EscapeString(link) + `">` + html.EscapeString(path.Base(link)) + "</a><br/>")
		}
		desc.WriteString(`<a href="` + html.EscapeString(base+"/api/raw/"+email+"/"+m.ID) + `">View raw email</a><br/>`)
		if htmlBody != "" {
			desc.WriteString(htmlBody)
		} else {
			desc.WriteString(strings.ReplaceAll(html.EscapeString(m.Body), "\n", "<br/>\n"))
		}

		item := rssItem{
			Title:       cdata{m.Subject},
			Link:        base + "/json/" + email + "/" + m.ID,
			GUID:        base + "/json/" + email + "/" + m.ID,
			Description: cdata{desc.String()},
		}
		if ms, err := strconv.ParseInt(m.ID, 10, 64); err == nil {
			item.PubDate = time.UnixMilli(ms).UTC().Format(time.RFC1123Z)
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/rss+xml; charset=UTF-8", append([]byte(xml.Header), out...))
}

type randomResponse struct {
	Email string `json:"email"`
}

// randomAddress returns a fresh address on one of the accepted domains.
func (s *Server) randomAddress(c echo.Context) error {
	if len(s.cfg.Domains) == 0 {
		return jsonError(c, http.StatusNotFound, "No domains configured")
	}
	return c.JSON(http.StatusOK, randomResponse{Email: randomLabel() + "@" + randomDomain(s.cfg.Domains)})
}

// randomDomain picks one pattern and turns it into a concrete domain. A
// wildcard pattern such as *.example.org gets a random subdomain label.
func randomDomain(patterns []string) string {
	p := strings.ToLower(strings.TrimSpace(patterns[rand.IntN(len(patterns))]))
	if !strings.Contains(p, "*") {
		return p
	}
	p = strings.ReplaceAll(p, "*", "")
	if strings.HasPrefix(p, ".") {
		p = randomLabel() + p
	}
	return p
}

func randomLabel() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
