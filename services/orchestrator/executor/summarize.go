// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

// Domain-aware summarization of search-style primary sequences. When the
// originating query carries weather intent, the first result title is
// mined for location, temperature, sky condition, wind, and air quality;
// otherwise up to three results are rendered as an indexed list.

import (
	"fmt"
	"regexp"
	"strings"
)

// weatherKeywords flag a weather-intent query. Mixed-language because
// upstream search providers serve both English and Chinese titles.
var weatherKeywords = []string{"weather", "forecast", "天气", "气温"}

// skyConditions is the closed set of recognized sky descriptions, first
// match wins. Longer variants precede their prefixes.
var skyConditions = []string{
	"partly cloudy", "sunny", "clear", "cloudy", "overcast",
	"rainy", "rain", "snowy", "snow", "foggy", "fog",
	"多云", "晴", "阴", "雨", "雪", "雾",
}

// airQualityLevels is the closed set of recognized air-quality labels.
var airQualityLevels = []string{
	"excellent", "good", "moderate", "lightly polluted", "unhealthy", "poor",
	"优", "良", "轻度污染", "中度污染", "重度污染",
}

var (
	// tempRangeRe matches NN~NN / NN-NN / NN至NN with an optional degree
	// marker after either bound.
	tempRangeRe  = regexp.MustCompile(`(-?\d{1,3})\s*(?:°C|℃|度)?\s*[~\x{FF5E}至-]\s*(-?\d{1,3})\s*(?:°C|℃|度)?`)
	tempSingleRe = regexp.MustCompile(`(-?\d{1,3})\s*(?:°C|℃|度)`)

	// windRe captures an 8-point compass direction followed by "wind"
	// and an optional strength. Compound directions precede simple ones
	// so "northeast" is not consumed as "north".
	windRe = regexp.MustCompile(`(northeast|northwest|southeast|southwest|north|south|east|west|东北|西北|东南|西南|北|南|东|西)\s*(?:wind|风)\s*((?:force\s*)?\d+\s*(?:level|级)?)?`)

	// airQualityRe anchors the label search to an explicit air-quality
	// mention so "good" elsewhere in a title is not misread.
	airQualityRe = regexp.MustCompile(`(?:air quality|空气质量)\s*[::]?\s*`)

	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	controlRe    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	disallowedRe = regexp.MustCompile(`[^\w\s\x{4E00}-\x{9FFF}.,:;!?%~\-°℃()\[\]{}'"@/&+*=#]`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// normalizeText strips control characters and HTML tags, removes
// characters outside {word, whitespace, CJK, basic punctuation}, and
// collapses whitespace runs.
func normalizeText(s string) string {
	s = controlRe.ReplaceAllString(s, "")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = disallowedRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// summarizePrimary renders a primary result sequence. Weather-intent
// queries get the structured extraction; everything else gets an indexed
// list of up to three items. Returns "" when nothing presentable was
// found, letting extraction fall through to the next precedence rule.
func summarizePrimary(primary []any, query string, total int) string {
	if hasWeatherIntent(query) {
		if summary := weatherSummary(primary, query); summary != "" {
			return summary
		}
	}
	return listSummary(primary, total)
}

func hasWeatherIntent(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range weatherKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// weatherSummary extracts the structured weather rendering from the
// first primary item. Returns "" unless at least one weather field was
// recognized beyond the location.
func weatherSummary(primary []any, query string) string {
	item, ok := primary[0].(map[string]any)
	if !ok {
		return ""
	}
	title, _ := item["title"].(string)
	title = normalizeText(title)
	if title == "" {
		return ""
	}

	var lines []string
	if location := locationFromQuery(query); location != "" {
		lines = append(lines, "📍 "+location)
	}

	fields := 0
	if temp := extractTemperature(title); temp != "" {
		lines = append(lines, "🌡️ "+temp)
		fields++
	}
	if sky := extractFirstMatch(title, skyConditions); sky != "" {
		lines = append(lines, "☁️ "+sky)
		fields++
	}
	if wind := extractWind(title); wind != "" {
		lines = append(lines, "💨 "+wind)
		fields++
	}
	if air := extractAirQuality(title); air != "" {
		lines = append(lines, "🌬️ air quality "+air)
		fields++
	}
	if fields == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// locationFromQuery is the query minus the intent keyword.
func locationFromQuery(query string) string {
	location := normalizeText(query)
	lower := strings.ToLower(location)
	for _, kw := range weatherKeywords {
		if idx := strings.Index(lower, kw); idx >= 0 {
			location = location[:idx] + location[idx+len(kw):]
			lower = strings.ToLower(location)
		}
	}
	return strings.TrimSpace(location)
}

func extractTemperature(title string) string {
	if m := tempRangeRe.FindStringSubmatch(title); m != nil {
		return fmt.Sprintf("%s°C~%s°C", m[1], m[2])
	}
	if m := tempSingleRe.FindStringSubmatch(title); m != nil {
		return m[1] + "°C"
	}
	return ""
}

func extractFirstMatch(title string, set []string) string {
	lower := strings.ToLower(title)
	for _, candidate := range set {
		if strings.Contains(lower, candidate) {
			return candidate
		}
	}
	return ""
}

func extractWind(title string) string {
	m := windRe.FindStringSubmatch(strings.ToLower(title))
	if m == nil {
		return ""
	}
	direction := m[1]
	strength := strings.TrimSpace(m[2])
	unit := "wind"
	if isCJKDirection(direction) {
		unit = "风"
		if strength != "" {
			return direction + unit + strings.ReplaceAll(strength, " ", "")
		}
		return direction + unit
	}
	if strength != "" {
		return direction + " " + unit + " " + strength
	}
	return direction + " " + unit
}

func isCJKDirection(s string) bool {
	return strings.ContainsAny(s, "东南西北")
}

func extractAirQuality(title string) string {
	lower := strings.ToLower(title)
	loc := airQualityRe.FindStringIndex(lower)
	if loc == nil {
		return ""
	}
	rest := lower[loc[1]:]
	for _, level := range airQualityLevels {
		if strings.HasPrefix(rest, level) || strings.Contains(rest, level) {
			return level
		}
	}
	return ""
}

// listSummary renders up to three items as "index. title\n   description"
// with descriptions truncated at 150 runes.
func listSummary(primary []any, total int) string {
	var sb strings.Builder
	count := 0
	for _, raw := range primary {
		if count == 3 {
			break
		}
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title, _ := item["title"].(string)
		title = normalizeText(title)
		if title == "" {
			continue
		}
		count++
		fmt.Fprintf(&sb, "%d. %s\n", count, title)
		if desc, _ := item["description"].(string); desc != "" {
			fmt.Fprintf(&sb, "   %s\n", truncateRunes(normalizeText(desc), 150))
		}
	}
	if count == 0 {
		return ""
	}
	if total > count {
		fmt.Fprintf(&sb, "(%d results total)", total)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
