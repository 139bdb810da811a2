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

import "strings"

// replyGroup pairs trigger keywords with a deterministic reply. Groups
// are checked in order; the first keyword hit wins.
type replyGroup struct {
	keywords []string
	reply    string
}

// fallbackReplies is the deterministic built-in reply table used when the
// conversational responder is unavailable or fails.
var fallbackReplies = []replyGroup{
	{
		keywords: []string{"hello", "hi", "hey", "你好", "您好"},
		reply:    "Hello! Tell me what you'd like to get done and I'll put together a plan.",
	},
	{
		keywords: []string{"who are you", "your name", "what are you", "你是谁"},
		reply:    "I'm Relay, a task orchestrator. Describe a task and I'll break it into steps and run them.",
	},
	{
		keywords: []string{"good morning", "good afternoon", "good evening", "早上好", "晚上好"},
		reply:    "Good day! What can I take care of for you?",
	},
	{
		keywords: []string{"thank", "thanks", "谢谢"},
		reply:    "You're welcome. Anything else you'd like me to run?",
	},
	{
		keywords: []string{"bye", "goodbye", "see you", "再见"},
		reply:    "Goodbye! Come back whenever you have a task for me.",
	},
	{
		keywords: []string{"are you there", "you there", "in there", "在吗"},
		reply:    "I'm here. What would you like me to do?",
	},
}

const defaultReply = "I can help with that — describe the task in a bit more detail and I'll plan it out."

// fallbackReply returns the deterministic reply for userText.
func fallbackReply(userText string) string {
	lower := strings.ToLower(userText)
	for _, group := range fallbackReplies {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.reply
			}
		}
	}
	return defaultReply
}
