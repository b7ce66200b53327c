// This file implements the logging surface of an execution context: one
// Write primitive that redacts, persists, fans out to the parent's log
// stream, and forwards to the upload queue's console channel, plus the
// tagged convenience wrappers layered on top of it.
package execution

import (
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

// Write redacts tag+message through the masker, writes the line to this
// context's own log stream, fans it out to the parent's stream when one
// exists (the job log aggregates all descendant output inline), and
// forwards it to the upload queue's console channel. Serialization of a
// stream written by multiple descendants is per log page, inside the page
// logger.
func (c *ExecutionContext) Write(tag, message string) {
	c.write(tag, message, tag == constants.TagDebug)
}

func (c *ExecutionContext) write(tag, message string, isDebug bool) {
	line := c.masker.Mask(tag + message)

	c.pages.Write(c.record.ID, line, isDebug)
	if c.parent != nil {
		c.pages.Write(c.parent.record.ID, line, isDebug)
	}
	c.queue.EnqueueConsoleLine(line)
}

// Output writes an untagged line of plain task output.
func (c *ExecutionContext) Output(message string) {
	c.write("", message, false)
}

// Error writes an error-tagged line and records it as an issue.
func (c *ExecutionContext) Error(message string) {
	c.Write(constants.TagError, message)
	c.AddIssue(domain.Issue{Kind: constants.IssueError, Message: message})
}

// Warning writes a warning-tagged line and records it as an issue.
func (c *ExecutionContext) Warning(message string) {
	c.Write(constants.TagWarning, message)
	c.AddIssue(domain.Issue{Kind: constants.IssueWarning, Message: message})
}

// Command writes a command-tagged line, marking an executed command.
func (c *ExecutionContext) Command(message string) {
	c.Write(constants.TagCommand, message)
}

// Section writes a section-tagged line, marking a log section boundary.
func (c *ExecutionContext) Section(message string) {
	c.Write(constants.TagSection, message)
}

// Debug writes a debug-tagged line brought through only when verbose mode
// is enabled; filtering is the page logger's concern, not this core's.
func (c *ExecutionContext) Debug(message string) {
	c.write(constants.TagDebug, message, true)
}
