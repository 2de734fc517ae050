package copywriter

import (
	"fmt"
	"strings"

	"stone-promo/models"
)

// SeoPrompt builds the vision prompt sent alongside the product image.
func SeoPrompt(p models.Product) string {
	material := p.Material
	if material == "" {
		material = "natural stone"
	}
	return fmt.Sprintf(`Analyze this %[1]s stone product image and generate an SEO-optimized description following these guidelines:

STONE DETAILS:
- Name: %[2]s
- Material Type: %[1]s
- Color Notes: %[3]s

LENGTH & FORMAT:
- Target 175-225 words total
- 3-5 sentences per paragraph
- Use elevated, descriptive, yet accessible language
- Blend luxury appeal with practical application

REQUIRED STRUCTURE:

1. OPENING SENTENCE (Hook):
   - Introduce the stone by name and type (%[1]s)
   - Highlight key visual attributes (color palette, texture, distinct qualities)
   - Use emotional appeal (e.g., breathtaking, dramatic, radiant, stunning)

2. VISUAL DESCRIPTION:
   - Describe background color(s) and veining patterns you see in the image
   - Emphasize contrast, movement, or light effects
   - Use evocative comparisons (e.g., "reminiscent of flowing marble," "adds depth and sophistication")

3. DESIGN VERSATILITY:
   - Note compatibility with both classic and modern designs
   - Mention pairing well with different cabinetry, materials, or styles

4. APPLICATIONS (vary the order each time):
   Include specific use cases: kitchen countertops, islands, bathroom vanities, fireplace surrounds, flooring, feature walls
   Mix functional and aspirational phrasing

5. CLOSING STATEMENT:
   - Reinforce timelessness, durability, and elegance
   - Position as ideal choice for luxury, versatility, or long-lasting beauty

SEO KEYWORDS TO INCLUDE NATURALLY:
- Use stone's full name (%[2]s) multiple times naturally
- Include: natural stone, %[4]s, elegant, luxurious, timeless, versatile, durable
- Specific applications: kitchen countertops, bathroom vanities, islands, feature walls, flooring, fireplace surrounds

IMPORTANT:
- Do NOT include lot numbers or product codes
- Do NOT overstuff keywords - keep it natural and conversational
- DO emphasize unique visual qualities from the image (color, veining, translucence, contrast)
- DO balance emotional appeal with practical use cases
- Vary application order for freshness`, material, p.Title, p.Color, strings.ToLower(material))
}

// scriptPrompt asks the model for a narration of roughly twenty seconds.
func scriptPrompt(p models.Product) string {
	return fmt.Sprintf(`Write a voice-over script of about 45 to 55 words (roughly 20 seconds spoken) for a luxury showroom video.

Stone: %s
Material: %s
Color notes: %s

Warm, refined, confident tone. Mention the stone by name once, one visual quality, and two applications such as countertops, islands or feature walls. Plain sentences only: no stage directions, no emojis, no lot numbers, no quotation marks.`, p.Title, p.Material, p.Color)
}
