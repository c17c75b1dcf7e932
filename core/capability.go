package core

// Kind classifies inbound message content.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	}
	return "unknown"
}

// ReplyShape tells the transport how to deliver a provider result.
type ReplyShape int

const (
	ReplyText ReplyShape = iota
	ReplyPhoto
	ReplyVoice
)

// Capability is one selectable AI service.
type Capability int

const (
	CapNone Capability = iota
	CapChat
	CapGemini
	CapSpeech
	CapImage
	CapVision
	CapTranscribe
)

// Descriptor binds the three naming schemes of a capability together with
// its expected input kind and reply shape. Selection tags travel in callback
// data, service names key the usage ledger, labels are shown to users.
// Keeping all three in one table is the whole point: nothing else in the
// code is allowed to spell these strings.
type Descriptor struct {
	Tag     string
	Service string
	Label   string
	Expects Kind
	Reply   ReplyShape
}

var registry = map[Capability]Descriptor{
	CapChat:       {Tag: "gpt", Service: "gpt", Label: "Chat (GPT)", Expects: KindText, Reply: ReplyText},
	CapGemini:     {Tag: "gemini", Service: "gemini", Label: "Chat (Gemini)", Expects: KindText, Reply: ReplyText},
	CapSpeech:     {Tag: "tts", Service: "text-to-speech", Label: "Text to speech", Expects: KindText, Reply: ReplyVoice},
	CapImage:      {Tag: "dalle", Service: "image-generation", Label: "Image generation", Expects: KindText, Reply: ReplyPhoto},
	CapVision:     {Tag: "itt", Service: "image-to-text", Label: "Image to text", Expects: KindImage, Reply: ReplyText},
	CapTranscribe: {Tag: "att", Service: "audio-to-text", Label: "Audio to text", Expects: KindAudio, Reply: ReplyText},
}

// capabilities in menu order
var ordered = []Capability{CapChat, CapGemini, CapSpeech, CapImage, CapVision, CapTranscribe}

// Descriptor returns the registry entry for the capability. The zero
// descriptor is returned for CapNone.
func (c Capability) Descriptor() Descriptor {
	return registry[c]
}

func (c Capability) Tag() string {
	return registry[c].Tag
}

func (c Capability) Service() string {
	return registry[c].Service
}

func (c Capability) Label() string {
	return registry[c].Label
}

// All returns every capability in stable menu order.
func All() []Capability {
	out := make([]Capability, len(ordered))
	copy(out, ordered)
	return out
}

// ParseTag resolves a selection tag back to its capability.
func ParseTag(tag string) (Capability, bool) {
	for _, c := range ordered {
		if registry[c].Tag == tag {
			return c, true
		}
	}
	return CapNone, false
}
