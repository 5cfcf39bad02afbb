// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"strings"
)

// systemPrompt is the instruction message seeded at the start of every
// session.
const systemPrompt = `You are an expert code manipulation tool.

You are in charge of understanding and optimizing a project's codebase, and have been
provided a set of tools for auditing and manipulating this project. You must use the tools
provided to the best of your ability to answer the user's questions precisely and in a
concise, accurate manner.

You will also be provided with a list of filenames in the project, which may give you
additional insight into the structure of the project's code repository.

You may _only_ use code that has been presented to you, either via a prompt or as a
tool call from get_file_source. Please use get_file_source as your source for truth for
code.

Once you have gotten the results from a tool call, please feel free to issue additional
tool calls to further dig into the problem.`

// fileListingMessage renders the repository file listing into the assistant
// seed message content.
func fileListingMessage(files []string) string {
	return fmt.Sprintf(
		"Here are the names of all the files in the project:\n```\n%s\n```",
		strings.Join(files, "\n"),
	)
}
