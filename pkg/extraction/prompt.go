package extraction

// DefaultPrompt asks the model for a catalog of visible entities as a single
// JSON object. The category and confidence lists match types.Categories and
// types.ConfidenceLevels.
const DefaultPrompt = `Analyze this image and extract all visible entities in a structured JSON format.

Please identify and categorize entities into the following types:
- people: individuals visible in the image
- objects: physical items, tools, furniture, etc.
- animals: any animals or pets
- vehicles: cars, bikes, planes, etc.
- buildings: houses, stores, landmarks, etc.
- nature: trees, flowers, landscapes, etc.
- text: any readable text, signs, labels
- food: meals, ingredients, beverages
- clothing: garments, accessories
- technology: computers, phones, electronics
- other: anything that doesn't fit the above categories

For each entity, provide:
- name: descriptive name of the entity
- category: one of the categories above
- confidence: your confidence level (high/medium/low)
- location: general location in image (e.g., "center", "top-left", "background")
- description: brief description with relevant details
- count: number of instances (if applicable)

Return ONLY a valid JSON object with this structure:
{
    "entities": [
        {
            "name": "entity_name",
            "category": "category_name",
            "confidence": "high/medium/low",
            "location": "location_description",
            "description": "detailed_description",
            "count": 1
        }
    ],
    "summary": {
        "total_entities": 0,
        "categories_found": [],
        "scene_description": "brief overall description"
    }
}`

// BuildPrompt returns the extraction prompt. It is constant.
func BuildPrompt() string {
	return DefaultPrompt
}
