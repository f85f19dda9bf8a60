package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DigiLync/digilync/internal/models"
)

// Reply texts. WhatsApp renders *text* as bold.
const (
	MsgWelcome = "🌾 *Welcome to DigiLync!*\n\n" +
		"Connect farmers with farm service providers.\n\n" +
		"Are you a *Farmer* or a *Provider*?\n" +
		"Reply:\n• *1* – Farmer (I need farm services)\n• *2* – Provider (I offer farm services)"

	MsgFarmerStart   = "Welcome! You are registering as a *Farmer*.\n\nPlease send your *full name*:"
	MsgProviderStart = "Welcome! You are registering as a *Service Provider*.\n\nPlease send your *full name*:"
	MsgAskName       = "Please send your full name."

	MsgAskVillage       = "Thanks! What is your *village or location*?"
	MsgAskFarmSize      = "What is your *farm size* in hectares? (e.g. 2.5)"
	MsgInvalidFarmSize  = "Please enter a valid number for farm size (e.g. 2.5)."
	MsgAskCrop          = "What *crop type* do you grow? (e.g. maize, cocoa, cassava)"
	MsgAskLocation      = "Almost done! You can *share your location* now (tap 📍) for GPS mapping, or reply *SKIP* to continue."
	MsgLocationReprompt = "Share your location (tap 📍) or reply *SKIP* to continue."

	MsgAskServices      = "What *services* do you offer? (e.g. plowing, spraying, harvesting)"
	MsgAskCapacity      = "What is your *work capacity* in hectares per hour? (e.g. 1.5)"
	MsgInvalidCapacity  = "Please enter a valid number (e.g. 1.5)."
	MsgAskPrice         = "What is your *base price per hectare* (in FCFA)? (e.g. 15000)"
	MsgInvalidPrice     = "Please enter a valid price (e.g. 15000)."
	MsgAskEquipment     = "What *equipment* do you use? (e.g. tractor, sprayer)"
	MsgAskRadius        = "What is your *service radius* in km? (e.g. 50)"
	MsgInvalidRadius    = "Please enter a valid number (e.g. 50)."
	MsgConfirmReprompt  = "Reply *YES* to register or *NO* to cancel."
	MsgFarmerRegistered = "✅ *Registration complete!* You are now a DigiLync farmer.\n\n" +
		"Reply *REQUEST* to request a farm service, or *MENU* for options."
	MsgProviderRegistered = "✅ *Registration complete!* You are now a DigiLync service provider.\n\n" +
		"Reply *JOBS* to see available jobs, or *MENU* for options."
	MsgRegistrationFailed = "Sorry, registration failed. Please try again or contact support."
	MsgCancelled          = "Registration cancelled. Reply *1* for Farmer or *2* for Provider to start again."

	MsgRequestSoon = "Service request will be available soon. For now, contact an admin to book a service."
	MsgJobsSoon    = "Available jobs will appear here. Check back soon!"
	MsgMenuHint    = "Reply *MENU* for options, or *REQUEST* / *JOBS* for services."
)

const confirmHeader = "📋 *Confirm your registration:*\n\n"

// formatNumber renders a number the way the user would type it: "2.5", "15000".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// farmerSummary lists the farmer's answers in the order they were collected.
func farmerSummary(d FarmerDraft) string {
	var b strings.Builder
	b.WriteString(confirmHeader)
	fmt.Fprintf(&b, "Name: %s\n", d.FullName)
	fmt.Fprintf(&b, "Village: %s\n", d.Village)
	fmt.Fprintf(&b, "Farm size: %s ha\n", formatNumber(d.FarmSizeHa))
	fmt.Fprintf(&b, "Crop: %s\n", d.CropType)
	if d.Location != nil {
		fmt.Fprintf(&b, "Location: %s, %s\n", formatNumber(d.Location.Lat), formatNumber(d.Location.Lng))
	}
	b.WriteString("\n")
	b.WriteString(MsgConfirmReprompt)
	return b.String()
}

// providerSummary lists the provider's answers in the order they were collected.
func providerSummary(d ProviderDraft) string {
	var b strings.Builder
	b.WriteString(confirmHeader)
	fmt.Fprintf(&b, "Name: %s\n", d.FullName)
	fmt.Fprintf(&b, "Services: %s\n", d.ServicesOffered)
	fmt.Fprintf(&b, "Capacity: %s ha/hr\n", formatNumber(d.WorkCapacityHaPerHour))
	fmt.Fprintf(&b, "Price: %s FCFA/ha\n", formatNumber(d.BasePricePerHa))
	fmt.Fprintf(&b, "Equipment: %s\n", d.EquipmentType)
	fmt.Fprintf(&b, "Radius: %s km\n", formatNumber(d.ServiceRadiusKm))
	b.WriteString("\n")
	b.WriteString(MsgConfirmReprompt)
	return b.String()
}

// MainMenu answers a message from an already registered farmer or provider.
// It never consults the session.
func MainMenu(id models.Identity, keyword string) string {
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = "there"
	}
	switch {
	case greetingKeywords.has(keyword):
		var b strings.Builder
		fmt.Fprintf(&b, "Hello %s! 👋\n\n", name)
		if id.Kind == models.RoleFarmer {
			b.WriteString("• Reply *REQUEST* – Request a farm service\n")
		} else {
			b.WriteString("• Reply *JOBS* – View available jobs\n")
		}
		b.WriteString("• Reply *PROFILE* – View your profile")
		return b.String()
	case keyword == "request" && id.Kind == models.RoleFarmer:
		return MsgRequestSoon
	case keyword == "jobs" && id.Kind == models.RoleProvider:
		return MsgJobsSoon
	case keyword == "profile":
		return fmt.Sprintf("You are registered as a *%s*. Use the admin dashboard to view full profile.", id.Kind)
	default:
		return MsgMenuHint
	}
}
