package conversation

import (
	"math"
	"strconv"
	"strings"

	"github.com/DigiLync/digilync/internal/models"
)

// keywordSet is a literal set of lowercased reply tokens.
type keywordSet map[string]struct{}

func newKeywordSet(words ...string) keywordSet {
	set := make(keywordSet, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func (k keywordSet) has(word string) bool {
	_, ok := k[word]
	return ok
}

var (
	farmerKeywords   = newKeywordSet("1", "farmer", "farm")
	providerKeywords = newKeywordSet("2", "provider", "service")
	yesKeywords      = newKeywordSet("yes", "y")
	noKeywords       = newKeywordSet("no", "n")
	greetingKeywords = newKeywordSet("hi", "hello", "menu", "start", "0")
)

const (
	skipKeyword        = "skip"
	defaultVillageText = "Not specified"
)

// Input is one inbound message as seen by the dialog.
type Input struct {
	// Text is the trimmed message body in the sender's casing.
	Text      string
	Latitude  *float64
	Longitude *float64
}

// NewInput builds an Input from an inbound message.
func NewInput(msg models.InboundMessage) Input {
	return Input{
		Text:      strings.TrimSpace(msg.Text),
		Latitude:  msg.Latitude,
		Longitude: msg.Longitude,
	}
}

// Keyword is the lowercased text used for keyword matching.
func (in Input) Keyword() string {
	return strings.ToLower(in.Text)
}

// coordinates returns the shared location when both parts are present and
// within range.
func (in Input) coordinates() (*Coordinates, bool) {
	if in.Latitude == nil || in.Longitude == nil {
		return nil, false
	}
	lat, lng := *in.Latitude, *in.Longitude
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, false
	}
	return &Coordinates{Lat: lat, Lng: lng}, true
}

// parseQuantity accepts a plain non-negative decimal: digits with at most one
// '.' or ',' decimal separator. Signs, exponents, hex and digit separators
// are rejected.
func parseQuantity(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	digits, separators := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',':
			separators++
		default:
			return 0, false
		}
	}
	if digits == 0 || separators > 1 {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Registration is a completed registration awaiting persistence. Exactly one
// member is set.
type Registration struct {
	Farmer   *FarmerDraft
	Provider *ProviderDraft
}

// Transition is the outcome of one Step.
type Transition struct {
	Next  State
	Reply string
	// Persist is false when the message left the session unchanged.
	Persist bool
	// Register is set when the user confirmed a registration. The session
	// moves to Next only if persisting it succeeds.
	Register *Registration
}

func advance(next State, reply string) Transition {
	return Transition{Next: next, Reply: reply, Persist: true}
}

func stay(current State, reply string) Transition {
	return Transition{Next: current, Reply: reply}
}

// Step decides the next state and reply for in. It performs no I/O.
func Step(state State, in Input) Transition {
	kw := in.Keyword()
	switch s := state.(type) {
	case Welcome:
		switch {
		case farmerKeywords.has(kw):
			return advance(FarmerName{}, MsgFarmerStart)
		case providerKeywords.has(kw):
			return advance(ProviderName{}, MsgProviderStart)
		default:
			return stay(s, MsgWelcome)
		}

	case FarmerName:
		if in.Text == "" {
			return stay(s, MsgAskName)
		}
		return advance(FarmerVillage{FarmerIdentity{FullName: in.Text}}, MsgAskVillage)

	case FarmerVillage:
		village := in.Text
		if village == "" {
			village = defaultVillageText
		}
		return advance(FarmerFarmSize{FarmerHome{s.FarmerIdentity, village}}, MsgAskFarmSize)

	case FarmerFarmSize:
		ha, ok := parseQuantity(in.Text)
		if !ok {
			return stay(s, MsgInvalidFarmSize)
		}
		return advance(FarmerCrop{FarmerHolding{s.FarmerHome, ha}}, MsgAskCrop)

	case FarmerCrop:
		return advance(FarmerLocation{FarmerCropping{s.FarmerHolding, in.Text}}, MsgAskLocation)

	case FarmerLocation:
		draft := FarmerDraft{FarmerCropping: s.FarmerCropping}
		if loc, ok := in.coordinates(); ok {
			draft.Location = loc
		} else if kw != skipKeyword {
			return stay(s, MsgLocationReprompt)
		}
		return advance(FarmerConfirm{draft}, farmerSummary(draft))

	case FarmerConfirm:
		switch {
		case yesKeywords.has(kw):
			draft := s.FarmerDraft
			t := advance(Welcome{}, MsgFarmerRegistered)
			t.Register = &Registration{Farmer: &draft}
			return t
		case noKeywords.has(kw):
			return advance(Welcome{}, MsgCancelled)
		default:
			return stay(s, MsgConfirmReprompt)
		}

	case ProviderName:
		if in.Text == "" {
			return stay(s, MsgAskName)
		}
		return advance(ProviderServices{ProviderIdentity{FullName: in.Text}}, MsgAskServices)

	case ProviderServices:
		return advance(ProviderCapacity{ProviderOffer{s.ProviderIdentity, in.Text}}, MsgAskCapacity)

	case ProviderCapacity:
		capacity, ok := parseQuantity(in.Text)
		if !ok {
			return stay(s, MsgInvalidCapacity)
		}
		return advance(ProviderPrice{ProviderThroughput{s.ProviderOffer, capacity}}, MsgAskPrice)

	case ProviderPrice:
		price, ok := parseQuantity(in.Text)
		if !ok {
			return stay(s, MsgInvalidPrice)
		}
		return advance(ProviderEquipment{ProviderPricing{s.ProviderThroughput, price}}, MsgAskEquipment)

	case ProviderEquipment:
		return advance(ProviderRadius{ProviderKit{s.ProviderPricing, in.Text}}, MsgAskRadius)

	case ProviderRadius:
		radius, ok := parseQuantity(in.Text)
		if !ok {
			return stay(s, MsgInvalidRadius)
		}
		draft := ProviderDraft{s.ProviderKit, radius}
		return advance(ProviderConfirm{draft}, providerSummary(draft))

	case ProviderConfirm:
		switch {
		case yesKeywords.has(kw):
			draft := s.ProviderDraft
			t := advance(Welcome{}, MsgProviderRegistered)
			t.Register = &Registration{Provider: &draft}
			return t
		case noKeywords.has(kw):
			return advance(Welcome{}, MsgCancelled)
		default:
			return stay(s, MsgConfirmReprompt)
		}

	default:
		return advance(Welcome{}, MsgWelcome)
	}
}
