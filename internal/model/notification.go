package model

// Channel is the delivery mechanism tag stored on notification records.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	// ChannelBoth marks the combined record written when email and push both went out.
	ChannelBoth Channel = "both"
)

func (c Channel) String() string { return string(c) }
