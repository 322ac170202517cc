package llm

import (
	"fmt"
	"strings"

	"github.com/scrypster/mlkg/pkg/types"
)

// NormalizationPrompt asks the model to deduplicate, normalize and classify a
// batch of raw entity strings.
func NormalizationPrompt(entities []string) string {
	var list strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&list, "- %s\n", e)
	}
	typeNames := make([]string, len(types.NormalizerEntityTypes))
	for i, t := range types.NormalizerEntityTypes {
		typeNames[i] = string(t)
	}

	return fmt.Sprintf(`You are an expert in Machine Learning and Deep Learning terminology.

I have extracted the following entities from academic ML/DL texts. Please normalize and classify them:

ENTITIES TO NORMALIZE:
%s
TASKS:
1. Deduplicate: Group similar entities (e.g., "SVM", "Support Vector Machine", "support vector machines" -> one canonical form)
2. Normalize: Use standard academic terminology and consistent capitalization
3. Classify: Assign each to ONE category: %s
4. Filter: Remove obvious noise/errors

RESPONSE FORMAT (JSON):
{
  "normalized_entities": [
    {
      "canonical_name": "Support Vector Machine",
      "type": "ALGORITHM",
      "aliases": ["SVM", "support vector machines", "Support Vector Machines"]
    },
    {
      "canonical_name": "Geoffrey Hinton",
      "type": "PERSON",
      "aliases": ["Hinton", "G. Hinton"]
    }
  ]
}

Important: Only return valid JSON. Be conservative - if unsure about an entity, classify as OTHER.`,
		list.String(), strings.Join(typeNames, ", "))
}

// RelationExtractionPrompt asks for relations between the given entities,
// restricted to the closed predicate vocabulary. chunkText must already be
// truncated by the caller.
func RelationExtractionPrompt(chunkText string, entities []string) string {
	var entityList, relationList strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&entityList, "- %s\n", e)
	}
	for _, p := range types.Predicates {
		fmt.Fprintf(&relationList, "- %s: %s\n", p.Name, p.Gloss)
	}

	return fmt.Sprintf(`You are an expert in Machine Learning and Deep Learning. Extract semantic relations between entities from the given text.

TEXT:
%s

ENTITIES FOUND:
%s
RELATION TYPES TO EXTRACT:
%s
TASK:
1. Find semantic relationships between the entities in the text
2. Use ONLY the relation types listed above
3. Extract relations that are explicitly or clearly implied in the text
4. Include the specific sentence/phrase that supports each relation

RESPONSE FORMAT (JSON):
{
  "relations": [
    {
      "subject": "Neural Network",
      "predicate": "uses",
      "object": "Gradient Descent",
      "context": "Neural networks are trained using gradient descent optimization"
    },
    {
      "subject": "Support Vector Machine",
      "predicate": "solves",
      "object": "Classification Problem",
      "context": "SVM is effective for classification tasks"
    }
  ]
}

Important:
- Only extract relations that are clearly supported by the text
- Use entity names EXACTLY as they appear in the entities list
- Include meaningful context for each relation
- Return valid JSON only`,
		chunkText, entityList.String(), relationList.String())
}

var enhancementInstructions = map[string]string{
	"what_is":         "Explain the concept didactically: definition, main characteristics and applications.",
	"what_uses":       "List and briefly explain each item that uses the concept.",
	"what_is_type_of": "Explain the hierarchy and classification of the concept.",
	"who_created":     "Give information about the creators and historical context.",
	"how_related":     "Explain the connections between the concepts.",
	"list_by_type":    "Present the list in an organized way with brief descriptions.",
	"find_similar":    "Compare the concepts and explain what they have in common.",
}

// EnhancementPrompt asks the model to rewrite a structured knowledge graph
// answer as natural prose without adding facts.
func EnhancementPrompt(question, queryType, structuredAnswer string, resultCount int, confidence float64) string {
	instruction, ok := enhancementInstructions[queryType]
	if !ok {
		instruction = "Answer clearly and informatively."
	}

	return fmt.Sprintf(`You are an assistant specialized in Machine Learning and Deep Learning.
Your task is to turn structured Knowledge Graph information into a natural, conversational answer.

RULES:
1. Use clear, didactic language
2. Keep technical accuracy
3. Be concise but informative
4. Do not add facts that are not in the data

QUERY TYPE: %s
SPECIFIC INSTRUCTION: %s

USER QUESTION: "%s"

KNOWLEDGE GRAPH DATA:
%s

METADATA: %d results found, confidence: %.0f%%

Rewrite the information above as a natural answer to the user's question.`,
		queryType, instruction, question, structuredAnswer, resultCount, confidence*100)
}
