package refoss

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// ChannelName returns the display name of a component channel.
//
// A non-null "name" in the component's config always wins. Otherwise input
// and switch channels are named "<Device> <Type> <index>", and every other
// component falls back to the bare device name.
func ChannelName(device NamedConfig, key string) string {
	if cfg := device.Config().Component(key); cfg != nil {
		if name, ok := cfg["name"]; ok && name != nil {
			if s, ok := name.(string); ok {
				return s
			}
			return fmt.Sprint(name)
		}
	}

	if strings.HasPrefix(key, "input:") || strings.HasPrefix(key, "switch:") {
		channel, _, _ := strings.Cut(key, ":")
		index := key[strings.LastIndex(key, ":")+1:]
		return fmt.Sprintf("%s %s %s", device.Name(), titleCaser.String(channel), index)
	}
	return device.Name()
}

// EntityName returns the display name of an entity on a channel. An empty
// description yields the channel name alone.
func EntityName(device NamedConfig, key, description string) string {
	channel := ChannelName(device, key)
	if description == "" {
		return channel
	}
	return channel + " " + strings.ToLower(description)
}
