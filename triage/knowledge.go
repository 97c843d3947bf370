package triage

import (
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v2"
)

// Article is one help-center article.
type Article struct {
	Title    string   `yaml:"title" json:"title"`
	Content  string   `yaml:"content" json:"content"`
	Link     string   `yaml:"link" json:"link"`
	Keywords []string `yaml:"keywords" json:"keywords,omitempty"`
}

// Knowledge is the static data the workflow reads: the email-domain
// directory and the help-center articles. It is read-only after load.
type Knowledge struct {
	// Directory maps an email domain to a customer user ID.
	Directory map[string]string `yaml:"directory"`

	Articles []Article `yaml:"articles"`
}

// DefaultKnowledge returns the built-in directory and help center.
func DefaultKnowledge() *Knowledge {
	return &Knowledge{
		Directory: map[string]string{
			"meta.com":       "1",
			"instagram.com":  "3",
			"mc-donalds.com": "1231",
		},
		Articles: []Article{
			{
				Title:    "Get started",
				Content:  "We support these 3rd party apps: Hubspot, Notion, Salesforce and Slack",
				Link:     "https://saas.helpcenter/get-started",
				Keywords: []string{"integration", "integrations", "support", "apps", "app", "3rd", "third", "party", "hubspot", "notion", "salesforce", "slack"},
			},
			{
				Title:    "Connect 3rd party apps",
				Content:  "To connect 3rd party apps got to the settings page, find the tab of the app you want to connect to and paste the api key",
				Link:     "https://saas.helpcenter/connect-3rd-party-apps",
				Keywords: []string{"connect", "connecting", "integrate", "settings", "api", "key", "apps", "app", "3rd", "third", "party", "hubspot", "notion", "salesforce", "slack"},
			},
		},
	}
}

// LoadKnowledge reads a YAML knowledge file on top of the defaults.
// Directory entries are added to (or override) the built-in ones; a
// non-empty articles list replaces the built-in articles.
//
// Example file:
//
//	directory:
//	  example.org: "42"
//	articles:
//	  - title: Reset your password
//	    content: Use "Forgot password" on the login page.
//	    link: https://saas.helpcenter/password
//	    keywords: [password, login, reset]
func LoadKnowledge(path string) (*Knowledge, error) {
	k := DefaultKnowledge()
	if path == "" {
		return k, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}

	var file Knowledge
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}

	for domain, id := range file.Directory {
		k.Directory[strings.ToLower(strings.TrimSpace(domain))] = id
	}
	if len(file.Articles) > 0 {
		for i, a := range file.Articles {
			if a.Content == "" || a.Link == "" {
				return nil, fmt.Errorf("knowledge file: article %d needs content and link", i)
			}
		}
		k.Articles = file.Articles
	}
	return k, nil
}
