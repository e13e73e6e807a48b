package analysis

import "github.com/ratemymr/internal/llmclient"

const summarySystemPrompt = "You are a summarizer. Provide a concise summary of the git diff output."

const reviewSystemPrompt = "You are a code reviewer tasked with evaluating the following code. " +
	"Please analyze it thoroughly and provide detailed feedback, focusing on the following aspects: " +
	"Bugs: Identify any potential bugs or logical errors in the code. " +
	"Code Quality: Suggest improvements for code readability, maintainability, and adherence to best practices. " +
	"Security Concerns: Highlight any security vulnerabilities or risks present in the code. " +
	"Performance: Point out any inefficiencies or areas where performance could be optimized. " +
	"Please provide specific examples from the code to support your comments and suggestions."

const lintSystemPrompt = "Please analyze the following git diff output and extract all instances of " +
	"lint-suppression comments (such as pylint: disable, nolint, eslint-disable, noqa). " +
	"For each instance, provide a summary that includes: " +
	"the specific lint checks being disabled, the lines of code they are associated with, " +
	"and any context or reasoning for why these disables might have been implemented. " +
	"Additionally, count and report the total number of newly added lint suppressions in this diff. " +
	"Lines starting with a single + are added and a single - are removed. " +
	"Nullify a suppression when the same line is removed and added elsewhere in the same function. " +
	"Report only added suppressions as JSON: " +
	`{"num_lint_disable": <number>, "lints_that_disabled": "<comma-separated rule names>"}`

const extractionSystemPrompt = "You are given a git diff file content. Your task is to extract only the newly " +
	"added code from the diff and produce a scannable source file. Rules: " +
	"lines starting with '+' are additions; ignore '-' lines and unchanged context lines. " +
	"If an entirely new function or method is added, include its full body exactly as shown, " +
	"including comments and original indentation (after stripping '+'). " +
	"Added lines that are not part of a new function should be grouped together under their file's heading " +
	"with their indentation stripped. Preserve all comments, including lint directives, in their original " +
	"positions. Do not include markdown formatting (such as code fences). " +
	"Output only the extracted code, with no explanations."

func userMessage(system, diff string) llmclient.CompletionRequest {
	return llmclient.CompletionRequest{Messages: []llmclient.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: diff},
	}}
}

func summaryRequest(diff string) llmclient.CompletionRequest {
	return userMessage(summarySystemPrompt, diff)
}

func reviewRequest(diff string) llmclient.CompletionRequest {
	return userMessage(reviewSystemPrompt, diff)
}

func lintRequest(diff string) llmclient.CompletionRequest {
	return userMessage(lintSystemPrompt, diff)
}

func extractionRequest(diff string) llmclient.CompletionRequest {
	return userMessage(extractionSystemPrompt, diff)
}
