package domain

// ─── Subscription Channels ──────────────────────────────────────────────────

// Channel is one bit of a session's subscription mask.
type Channel uint8

const (
	ChannelTransactions    Channel = 1 << 2
	ChannelOwnTransactions Channel = 1 << 3
	ChannelNames           Channel = 1 << 4
	ChannelOwnNames        Channel = 1 << 5
)

// DefaultChannels is the mask of a fresh session.
const DefaultChannels = ChannelOwnTransactions

// channelOrder fixes the wire order of channel lists.
var channelOrder = []struct {
	ch   Channel
	name string
}{
	{ChannelTransactions, "transactions"},
	{ChannelOwnTransactions, "ownTransactions"},
	{ChannelNames, "names"},
	{ChannelOwnNames, "ownNames"},
}

// ParseChannel resolves a channel name as sent by clients.
func ParseChannel(name string) (Channel, bool) {
	for _, c := range channelOrder {
		if c.name == name {
			return c.ch, true
		}
	}
	return 0, false
}

func (c Channel) String() string {
	for _, o := range channelOrder {
		if o.ch == c {
			return o.name
		}
	}
	return "unknown"
}

// Has reports whether every bit of ch is set in c.
func (c Channel) Has(ch Channel) bool {
	return ch != 0 && c&ch == ch
}

// Names lists the channels set in c.
func (c Channel) Names() []string {
	out := []string{}
	for _, o := range channelOrder {
		if c.Has(o.ch) {
			out = append(out, o.name)
		}
	}
	return out
}

// ValidChannels lists every channel clients may subscribe to.
func ValidChannels() []string {
	out := make([]string, len(channelOrder))
	for i, o := range channelOrder {
		out[i] = o.name
	}
	return out
}
