package rebase

import (
	"fmt"
	"strings"
)

const (
	todoPickLineTemplateConstant  = "pick %s %s"
	todoFixupLineTemplateConstant = "fixup %s"
	todoLineSeparatorConstant     = "\n"
)

// TodoCommit is one branch commit destined for the rebase todo list.
type TodoCommit struct {
	Hash      string
	ShortHash string
	Subject   string
}

// BuildTodo renders the rebase todo list: every branch commit in replay order
// with each target's fixup commit directly after it.
func BuildTodo(commitsOldestFirst []TodoCommit, fixupHashByTarget map[string]string) string {
	var todoBuilder strings.Builder
	for _, todoCommit := range commitsOldestFirst {
		fmt.Fprintf(&todoBuilder, todoPickLineTemplateConstant, todoCommit.ShortHash, todoCommit.Subject)
		todoBuilder.WriteString(todoLineSeparatorConstant)
		if fixupHash, present := fixupHashByTarget[todoCommit.Hash]; present {
			fmt.Fprintf(&todoBuilder, todoFixupLineTemplateConstant, fixupHash)
			todoBuilder.WriteString(todoLineSeparatorConstant)
		}
	}
	return todoBuilder.String()
}
