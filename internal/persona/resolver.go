package persona

import "strings"

// Voice selects the synthesized voice for a simulated customer.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceAsh     Voice = "ash"
	VoiceBallad  Voice = "ballad"
	VoiceCoral   Voice = "coral"
	VoiceEcho    Voice = "echo"
	VoiceSage    Voice = "sage"
	VoiceShimmer Voice = "shimmer"
	VoiceVerse   Voice = "verse"
)

// Persona describes the simulated customer for one training scenario:
// emotional state and goals (SystemPrompt), the line spoken right after the
// agent joins (Greeting), and the voice it speaks with.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Greeting     string `json:"greeting"`
	Voice        Voice  `json:"voice"`
}

// DefaultPersonaID is used when a room carries a well-formed but unknown
// scenario key. Deliberately permissive so a mistyped scenario still yields a
// working session instead of a silent agent.
const DefaultPersonaID = "billing-dispute"

var personas = map[string]Persona{
	"billing-dispute": {
		ID:           "billing-dispute",
		Name:         "Angry Billing Customer",
		SystemPrompt: "You are an angry customer calling about a billing dispute. Your bill is $350 when it should be $85. You're frustrated and want immediate resolution. Be aggressive but soften if the agent shows empathy.",
		Greeting:     "Hello? I'm calling about my bill. It's absolutely outrageous this month! Three hundred and fifty dollars?! My bill is supposed to be eighty-five dollars. I've been a customer for three years and this is how you treat me? I need this fixed RIGHT NOW!",
		Voice:        VoiceAsh,
	},
	"technical-support": {
		ID:           "technical-support",
		Name:         "Frustrated Tech User",
		SystemPrompt: "You are a frustrated customer with technical issues. Your internet has been down for 3 hours. You're stressed but willing to follow troubleshooting.",
		Greeting:     "Hi, my internet has been completely down for three hours now. I have an important video call in 30 minutes. Can you help me troubleshoot?",
		Voice:        VoiceEcho,
	},
	"sales-upsell": {
		ID:           "sales-upsell",
		Name:         "Interested Customer",
		SystemPrompt: "You are a customer interested in upgrading your plan. You're cautious about pricing but interested in new features.",
		Greeting:     "Hi! I saw your ad about new premium plans. I'm on the basic plan and curious about upgrade options. What features would I get?",
		Voice:        VoiceCoral,
	},
	"retention": {
		ID:           "retention",
		Name:         "Canceling Customer",
		SystemPrompt: "You are disappointed and want to cancel service due to recent outages. You're firm about leaving unless given a compelling reason.",
		Greeting:     "I'd like to cancel my service. I've had multiple outages and customer service hasn't been helpful. I found a better deal elsewhere.",
		Voice:        VoiceSage,
	},
	"compliance-privacy": {
		ID:           "compliance-privacy",
		Name:         "Suspicious Caller",
		SystemPrompt: "You are cautious about data privacy. You received a suspicious call asking for personal info. Ask verification questions.",
		Greeting:     "I received a call earlier claiming to be from your company asking for my social security number. Was this legitimate?",
		Voice:        VoiceAlloy,
	},
	"returns": {
		ID:           "returns",
		Name:         "Upset Return Customer",
		SystemPrompt: "You are upset about receiving a damaged product. You want a full refund including shipping.",
		Greeting:     "I need to return a damaged product. I paid for expedited shipping. I want a full refund including shipping.",
		Voice:        VoiceBallad,
	},
	"vip-support": {
		ID:           "vip-support",
		Name:         "VIP Customer",
		SystemPrompt: "You are a premium customer with high expectations. You're interested in upgrades and expect white-glove service.",
		Greeting:     "Good afternoon. I'm a long-time premium member interested in your latest upgrade options. I value my time.",
		Voice:        VoiceShimmer,
	},
	"fraud-alert": {
		ID:           "fraud-alert",
		Name:         "Panicked Fraud Victim",
		SystemPrompt: "You are anxious about suspicious charges. You want immediate protection.",
		Greeting:     "I received a text about a suspicious $450 charge I didn't make! Block my card immediately!",
		Voice:        VoiceVerse,
	},
}

// Scenario keys as sent by the catalog map onto persona IDs here.
var scenarioAliases = map[string]string{
	"billing":    "billing-dispute",
	"technical":  "technical-support",
	"sales":      "sales-upsell",
	"retention":  "retention",
	"compliance": "compliance-privacy",
	"returns":    "returns",
	"vip":        "vip-support",
	"fraud":      "fraud-alert",
}

// Resolve maps a room name of the form axtra-<scenario>-<user>-<millis> to a
// persona. The second return reports whether the default persona was
// substituted for an unknown scenario key. A malformed room name (wrong
// namespace or fewer than 3 segments) resolves to nothing.
func Resolve(roomName string) (*Persona, bool) {
	parts := strings.Split(roomName, "-")
	if len(parts) < 3 || parts[0] != "axtra" {
		return nil, false
	}

	key := strings.ToLower(parts[1])
	if id, ok := scenarioAliases[key]; ok {
		key = id
	}

	if p, ok := personas[key]; ok {
		return &p, false
	}
	p := personas[DefaultPersonaID]
	return &p, true
}

// All returns every persona sorted by ID for catalog listings.
func All() []Persona {
	out := make([]Persona, 0, len(personas))
	for _, id := range []string{
		"billing-dispute",
		"compliance-privacy",
		"fraud-alert",
		"retention",
		"returns",
		"sales-upsell",
		"technical-support",
		"vip-support",
	} {
		out = append(out, personas[id])
	}
	return out
}
