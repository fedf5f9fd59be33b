package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill copies a watermill message's headers into bus metadata.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// ToWatermill copies bus metadata into a watermill header map.
func ToWatermill(md Metadata) message.Metadata {
	out := make(message.Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
