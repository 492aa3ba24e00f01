package extraction

import "fmt"

func entityPrompt(text string) string {
	return fmt.Sprintf(`Given a text document that is potentially relevant to this activity and a list of entity types, identify all entities of those types from the text.

For each identified entity, extract the following information:
- entity_name: Name of the entity, capitalized
- entity_type: One of the following types: [PERSON, ORGANIZATION, GEO, EVENT, CONCEPT]
- entity_description: Comprehensive description of the entity's attributes and activities

Format each entity output as a JSON entry with the following format:
{"name": "<entity name>", "type": "<type>", "description": "<entity description>"}

Text:
%s

Just return output as a list of JSON entities, nothing else.`, text)
}

func relationshipPrompt(text string) string {
	return fmt.Sprintf(`Given a text document, identify all relationships between entities in the text.

For each relationship, extract:
- source_entity: Name of the source entity (capitalized)
- target_entity: Name of the target entity (capitalized)
- relationship_description: Explanation of how they are related
- relationship_strength: Integer score 1-10 indicating strength

Format as JSON:
{"source": "<source>", "target": "<target>", "relationship": "<description>", "relationship_strength": <strength>}

Text:
%s

Just return output as a list of JSON relationships, nothing else.`, text)
}
