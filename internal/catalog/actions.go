package catalog

import "strings"

// ActionKind identifies one processing action a client can request.
type ActionKind string

const (
	ActionThumbnail      ActionKind = "thumbnail"
	ActionImageConvert   ActionKind = "image_convert"
	ActionImageCompress  ActionKind = "image_compress"
	ActionVideoThumbnail ActionKind = "video_thumbnail"
	ActionVideoPreview   ActionKind = "video_preview"
	ActionVideoConvert   ActionKind = "video_convert"
	ActionVirusScan      ActionKind = "virus_scan"
	ActionEncrypt        ActionKind = "encrypt"
	ActionDecrypt        ActionKind = "decrypt"
	ActionAITag          ActionKind = "ai_tag"
)

// Family groups action kinds by the worker pool that executes them.
type Family string

const (
	FamilyImage    Family = "image"
	FamilyVideo    Family = "video"
	FamilySecurity Family = "security"
	FamilyAI       Family = "ai"
)

var actionFamilies = map[ActionKind]Family{
	ActionThumbnail:      FamilyImage,
	ActionImageConvert:   FamilyImage,
	ActionImageCompress:  FamilyImage,
	ActionVideoThumbnail: FamilyVideo,
	ActionVideoPreview:   FamilyVideo,
	ActionVideoConvert:   FamilyVideo,
	ActionVirusScan:      FamilySecurity,
	ActionEncrypt:        FamilySecurity,
	ActionDecrypt:        FamilySecurity,
	ActionAITag:          FamilyAI,
}

var allActionKinds = []ActionKind{
	ActionThumbnail,
	ActionImageConvert,
	ActionImageCompress,
	ActionVideoThumbnail,
	ActionVideoPreview,
	ActionVideoConvert,
	ActionVirusScan,
	ActionEncrypt,
	ActionDecrypt,
	ActionAITag,
}

// AllActionKinds returns the ordered list of known action kinds.
func AllActionKinds() []ActionKind {
	cp := make([]ActionKind, len(allActionKinds))
	copy(cp, allActionKinds)
	return cp
}

// AllFamilies returns the queue families in routing order.
func AllFamilies() []Family {
	return []Family{FamilyImage, FamilyVideo, FamilySecurity, FamilyAI}
}

// ParseActionKind converts a string into a known ActionKind.
func ParseActionKind(value string) (ActionKind, bool) {
	normalized := ActionKind(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := actionFamilies[normalized]
	return normalized, ok
}

// ParseFamily converts a string into a known Family.
func ParseFamily(value string) (Family, bool) {
	normalized := Family(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FamilyImage, FamilyVideo, FamilySecurity, FamilyAI:
		return normalized, true
	}
	return "", false
}

// Family returns the worker pool responsible for the action kind.
func (k ActionKind) Family() Family {
	return actionFamilies[k]
}

// QueueName returns the broker queue the family consumes from.
func (f Family) QueueName() string {
	return string(f) + "_queue"
}
