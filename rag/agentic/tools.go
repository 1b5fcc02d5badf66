package agentic

import "strings"

// Tool names a retrieval strategy the executor may pick. Every tool hits the
// same retrieval port; they differ in how the query is framed.
type Tool string

const (
	ToolSearchDocuments Tool = "search_documents"
	ToolExtractRisks    Tool = "extract_risks"
	ToolExtractRewards  Tool = "extract_rewards"
	ToolFindDefinitions Tool = "find_definitions"
)

var toolCatalog = []struct {
	tool        Tool
	description string
	prefix      string
}{
	{ToolSearchDocuments, "search relevant factual excerpts", ""},
	{ToolExtractRisks, "find risks, downsides or negative outcomes", "risks downsides danger negative limitations of "},
	{ToolExtractRewards, "find benefits, upsides or positive outcomes", "benefits advantages rewards positive outcomes of "},
	{ToolFindDefinitions, "find definitions of terms", "definition meaning explanation of term "},
}

// resolveTool maps a model-provided name to a known tool. Unknown names fall
// back to plain document search.
func resolveTool(name string) Tool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, entry := range toolCatalog {
		if string(entry.tool) == name {
			return entry.tool
		}
	}
	return ToolSearchDocuments
}

// Query frames q for the tool.
func (t Tool) Query(q string) string {
	q = strings.TrimSpace(q)
	for _, entry := range toolCatalog {
		if entry.tool == t {
			return entry.prefix + q
		}
	}
	return q
}

func toolDocs() []toolDoc {
	docs := make([]toolDoc, 0, len(toolCatalog))
	for _, entry := range toolCatalog {
		docs = append(docs, toolDoc{Name: string(entry.tool), Description: entry.description})
	}
	return docs
}
