package promptstore

import "github.com/fitroom/tryon-engine/internal/models"

// baseInstruction is the root of every seeded lineage. Garment identity (exact
// color, pattern, texture) and unchanged body proportions are the two failure
// modes the generator regresses on most, so both are spelled out hard.
const baseInstruction = `Put this clothing item on this person.

CRITICAL - COLOR:
- The clothing color MUST stay EXACTLY as in the garment photo - do not change it!
- Do not adjust the color for lighting, do not make it lighter or darker
- Preserve the exact hue, saturation and brightness

IMPORTANT:
- The clothing must look exactly as in the source photo - same color, texture, pattern and details
- DO NOT change the person's body: height, weight, proportions and build must stay EXACTLY the same
- If the clothing is too big, it should hang loose and look baggy
- If the clothing is too small, it should look tight and stretched
- Show a REALISTIC fit of the clothing on the person's REAL body
- Preserve the person's pose, face and appearance`

// DefaultPrompts are the version-1 roots seeded for each lineage.
var DefaultPrompts = map[models.Category]string{
	models.CategoryDefault:   baseInstruction,
	models.CategoryTop:       baseInstruction + "\n- Pay special attention to the shoulder fit and sleeve length",
	models.CategoryBottom:    baseInstruction + "\n- Pay special attention to the waist fit and the length of the legs/skirt",
	models.CategoryDress:     baseInstruction + "\n- Pay special attention to the full dress length and silhouette\n- KEEP THE EXACT DRESS COLOR!",
	models.CategoryOuterwear: baseInstruction + "\n- Show how the outerwear sits over the other clothes",
	models.CategorySwimwear:  baseInstruction + "\n- This is swimwear - show realistically how it fits\n- Keep the natural look of the body, do not alter the figure",
	models.CategoryUnderwear: baseInstruction + "\n- This is underwear - show realistically how it fits\n- Keep the natural look of the body",
}

// Builtin is the last-resort prompt used when the store itself is unreachable.
func Builtin(category models.Category) string {
	if p, ok := DefaultPrompts[category]; ok {
		return p
	}
	return DefaultPrompts[models.CategoryDefault]
}
