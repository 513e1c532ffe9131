// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"regexp"
	"strings"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

var (
	authorPattern  = regexp.MustCompile(`Author: (?P<name>[^<]+\s*)[<](?P<email>[^>]+)[>]`)
	commitPattern  = regexp.MustCompile(`(?i)commit\s*(\w+)`)
	messagePattern = regexp.MustCompile(`(?ms)Date:.*?\n\s*(.*?)\s*^diff --git`)

	// A commit with an empty diff (merge, --allow-empty) has no
	// "diff --git" line; the message runs to the end of the output.
	trailingMessagePattern = regexp.MustCompile(`(?s)Date:[^\n]*\n\s*(.*?)\s*$`)

	repositoryPattern = regexp.MustCompile(`github.com[:/](?P<owner>[\w_-]+)[/](?P<name>[\w_-]+)([.]git)?`)
)

// ParseCommit extracts commit metadata from "git show" output. Each
// field is matched independently; a field whose pattern does not match
// is left empty.
func ParseCommit(show string) schema.CommitInfo {
	var info schema.CommitInfo
	if match := authorPattern.FindStringSubmatch(show); match != nil {
		info.AuthorName = strings.TrimSpace(match[authorPattern.SubexpIndex("name")])
		info.AuthorEmail = strings.TrimSpace(match[authorPattern.SubexpIndex("email")])
	}
	if match := commitPattern.FindStringSubmatch(show); match != nil {
		info.Hash = match[1]
	}
	if match := messagePattern.FindStringSubmatch(show); match != nil {
		info.Message = match[1]
	} else if match := trailingMessagePattern.FindStringSubmatch(show); match != nil {
		info.Message = match[1]
	}
	return info
}

// ParseRepository extracts the GitHub owner and repository name from
// an SSH or HTTPS clone URI. ok is false for anything that is not a
// github.com URI.
func ParseRepository(uri string) (owner, name string, ok bool) {
	match := repositoryPattern.FindStringSubmatch(uri)
	if match == nil {
		return "", "", false
	}
	return match[repositoryPattern.SubexpIndex("owner")], match[repositoryPattern.SubexpIndex("name")], true
}
