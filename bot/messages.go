package bot

import (
	"Omni/core"
	"fmt"
	"sort"
	"strings"
)

const errorResponse = "Sorry, I'm not feeling well today. Please try again later."

const noSelectionResponse = "Please pick a service first: send /menu and tap one of the buttons."

const rejectedInputResponse = "Your message is empty or too long. Please try again with a shorter text."

const noUsageResponse = "You haven't used any service yet."

func welcomeResponse(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello %s! Pick a service below and send me a message: "+
		"text, a photo or a voice note, depending on what you picked.", name)
}

func helpResponse() string {
	text := "You can use the following commands:\n"
	text += "/start - register and pick a service\n"
	text += "/menu - show the service menu\n"
	text += "/state - show the currently selected service\n"
	text += "/stats - show your usage counters\n"
	text += "/help - show this help\n"
	return text
}

func kindMismatchResponse(desc core.Descriptor) string {
	switch desc.Expects {
	case core.KindImage:
		return fmt.Sprintf("%s needs a photo or an image file. Send me one, or pick another service with /menu.", desc.Label)
	case core.KindAudio:
		return fmt.Sprintf("%s needs a voice or audio message. Send me one, or pick another service with /menu.", desc.Label)
	default:
		return fmt.Sprintf("%s needs a text message. Type something, or pick another service with /menu.", desc.Label)
	}
}

func selectedResponse(desc core.Descriptor) string {
	return fmt.Sprintf("Selected: %s", desc.Label)
}

func unavailableResponse(desc core.Descriptor) string {
	return fmt.Sprintf("%s is not available right now. Pick another service with /menu.", desc.Label)
}

func stateResponse(capability core.Capability) string {
	if capability == core.CapNone {
		return "No service selected. Use /menu to pick one."
	}
	return fmt.Sprintf("Current service: %s", capability.Label())
}

func statsResponse(counts map[string]int) string {
	if len(counts) == 0 {
		return noUsageResponse
	}

	services := make([]string, 0, len(counts))
	for service := range counts {
		services = append(services, service)
	}
	sort.Strings(services)

	var b strings.Builder
	b.WriteString("Your usage so far:\n")
	for _, service := range services {
		b.WriteString(fmt.Sprintf("%s: %d\n", service, counts[service]))
	}
	return strings.TrimRight(b.String(), "\n")
}
