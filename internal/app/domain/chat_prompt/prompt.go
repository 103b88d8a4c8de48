package llmchat

import (
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const locationsContract = `When you recommend places, write a short friendly answer and list them as a numbered list ("1. Name - one sentence description").
Then end your reply with a single JSON object in a json code block, and nothing after it:
{"locations":[{"name":"...","coordinates":[latitude,longitude],"rating":4.6,"reviews":12000,"description":"...","city":"...","country":"..."}]}
Coordinates are decimal degrees, latitude first. Only include places you are confident exist.`

const weatherContract = `If the user asks about the weather, do not recommend places. Reply with exactly one sentence of the form "I'll check the weather in <City>." naming the city.`

// BuildPrompt assembles the travel assistant prompt for message. city is the
// current city context and may be empty.
func BuildPrompt(message, city string) string {
	var b strings.Builder
	b.WriteString("You are a travel assistant that helps people discover places on a map.\n")
	if city = strings.TrimSpace(city); city != "" {
		fmt.Fprintf(&b, "The user is currently exploring %s. Assume questions are about %s unless they name another place.\n", city, city)
	}
	b.WriteString("\n")
	b.WriteString(locationsContract)
	b.WriteString("\n\n")
	b.WriteString(weatherContract)
	b.WriteString("\n\nUser: ")
	b.WriteString(strings.TrimSpace(message))
	return b.String()
}

// defaultGenerateConfig is the generation config for chat replies.
func defaultGenerateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: 2048,
	}
}
