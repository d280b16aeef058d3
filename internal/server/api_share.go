package server

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const previewRunes = 100

// ShareLinks are ready-made links for sharing a phase or rule.
type ShareLinks struct {
	Copy  string `json:"copy"`
	Email string `json:"email"`
	SMS   string `json:"sms"`
}

// Share describes a shareable page.
type Share struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Links       ShareLinks `json:"links"`
}

func newShare(url, title, description string) Share {
	t, d, u := escapeComponent(title), escapeComponent(description), escapeComponent(url)
	return Share{
		URL:         url,
		Title:       title,
		Description: description,
		Links: ShareLinks{
			Copy:  url,
			Email: "mailto:?subject=" + t + "&body=" + d + "%0A%0A" + u,
			SMS:   "sms:?body=" + d + " " + u,
		},
	}
}

// escapeComponent percent-encodes s for mailto and sms links, leaving
// unreserved characters and "/" intact.
func escapeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~', c == '/':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

// preview truncates text to previewRunes characters, marking the cut.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
		ID   int64  `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" || req.ID == 0 {
		writeError(w, http.StatusBadRequest, "type and id are required")
		return
	}

	base := strings.TrimRight(s.opts.AppURL, "/")
	switch req.Type {
	case "phase":
		phase, err := s.store.GetPhase(r.Context(), req.ID)
		if err != nil {
			s.storeError(w, r, err, msgPhaseNotFound, "")
			return
		}
		writeJSON(w, http.StatusOK, newShare(
			base+"/phase/"+phase.PhaseCode,
			fmt.Sprintf("Phase %s: %s", phase.PhaseCode, phase.PhaseName),
			"Simonini-ism - "+phase.PhaseName,
		))
	case "rule":
		rule, err := s.store.GetRule(r.Context(), req.ID)
		if err != nil {
			s.storeError(w, r, err, msgRuleNotFound, "")
			return
		}
		writeJSON(w, http.StatusOK, newShare(
			fmt.Sprintf("%s/rule/%d", base, rule.RuleID),
			fmt.Sprintf("Rule %d - Phase %s", rule.RuleNumber, rule.PhaseCode),
			"Simonini-ism: "+preview(rule.RuleText),
		))
	default:
		writeError(w, http.StatusBadRequest, `Invalid share type. Use "phase" or "rule"`)
	}
}
