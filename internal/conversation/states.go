// Package conversation implements the WhatsApp registration dialog.
//
// A session's persisted (role, step, fields) triple is decoded into a typed
// State. Each State carries exactly the answers collected before it, so the
// confirmation summary and the final insert never need presence checks.
// Step computes the next State and reply as a pure function; Engine wires it
// to the session store, identity lookup and registration persistence.
package conversation

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/DigiLync/digilync/internal/models"
)

// Persisted step tokens.
const (
	StepWelcome = models.StepWelcome

	StepFarmerName     = "farmer_name"
	StepFarmerVillage  = "farmer_village"
	StepFarmerFarmSize = "farmer_farm_size"
	StepFarmerCrop     = "farmer_crop"
	StepFarmerLocation = "farmer_location_optional"
	StepFarmerConfirm  = "farmer_confirm"

	StepProviderName      = "provider_name"
	StepProviderServices  = "provider_services"
	StepProviderCapacity  = "provider_capacity"
	StepProviderPrice     = "provider_price"
	StepProviderEquipment = "provider_equipment"
	StepProviderRadius    = "provider_radius"
	StepProviderConfirm   = "provider_confirm"
)

// Session field keys. They match the farmer and provider column names.
const (
	keyFullName        = "full_name"
	keyVillage         = "village"
	keyFarmSize        = "farm_size_ha"
	keyCropType        = "crop_type"
	keyGPSLat          = "gps_lat"
	keyGPSLng          = "gps_lng"
	keyServicesOffered = "services_offered"
	keyWorkCapacity    = "work_capacity_ha_per_hour"
	keyBasePrice       = "base_price_per_ha"
	keyEquipmentType   = "equipment_type"
	keyServiceRadius   = "service_radius_km"
)

// State is a position in the registration dialog. The set of implementations
// is closed: Welcome plus one type per farmer and provider step.
type State interface {
	// Role is the flow that owns the state.
	Role() models.Role
	// StepName is the persisted step token.
	StepName() string
	fields() models.SessionFields
}

// Coordinates is a shared GPS location.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Farmer answers, widened by one field per step.
type (
	FarmerIdentity struct {
		FullName string
	}
	FarmerHome struct {
		FarmerIdentity
		Village string
	}
	FarmerHolding struct {
		FarmerHome
		FarmSizeHa float64
	}
	FarmerCropping struct {
		FarmerHolding
		CropType string
	}
	FarmerDraft struct {
		FarmerCropping
		Location *Coordinates
	}
)

// Provider answers, widened by one field per step.
type (
	ProviderIdentity struct {
		FullName string
	}
	ProviderOffer struct {
		ProviderIdentity
		ServicesOffered string
	}
	ProviderThroughput struct {
		ProviderOffer
		WorkCapacityHaPerHour float64
	}
	ProviderPricing struct {
		ProviderThroughput
		BasePricePerHa float64
	}
	ProviderKit struct {
		ProviderPricing
		EquipmentType string
	}
	ProviderDraft struct {
		ProviderKit
		ServiceRadiusKm float64
	}
)

func (r FarmerIdentity) fields() models.SessionFields {
	return models.SessionFields{keyFullName: r.FullName}
}

func (r FarmerHome) fields() models.SessionFields {
	f := r.FarmerIdentity.fields()
	f[keyVillage] = r.Village
	return f
}

func (r FarmerHolding) fields() models.SessionFields {
	f := r.FarmerHome.fields()
	f[keyFarmSize] = r.FarmSizeHa
	return f
}

func (r FarmerCropping) fields() models.SessionFields {
	f := r.FarmerHolding.fields()
	f[keyCropType] = r.CropType
	return f
}

func (r FarmerDraft) fields() models.SessionFields {
	f := r.FarmerCropping.fields()
	if r.Location != nil {
		f[keyGPSLat] = r.Location.Lat
		f[keyGPSLng] = r.Location.Lng
	}
	return f
}

func (r ProviderIdentity) fields() models.SessionFields {
	return models.SessionFields{keyFullName: r.FullName}
}

func (r ProviderOffer) fields() models.SessionFields {
	f := r.ProviderIdentity.fields()
	f[keyServicesOffered] = r.ServicesOffered
	return f
}

func (r ProviderThroughput) fields() models.SessionFields {
	f := r.ProviderOffer.fields()
	f[keyWorkCapacity] = r.WorkCapacityHaPerHour
	return f
}

func (r ProviderPricing) fields() models.SessionFields {
	f := r.ProviderThroughput.fields()
	f[keyBasePrice] = r.BasePricePerHa
	return f
}

func (r ProviderKit) fields() models.SessionFields {
	f := r.ProviderPricing.fields()
	f[keyEquipmentType] = r.EquipmentType
	return f
}

func (r ProviderDraft) fields() models.SessionFields {
	f := r.ProviderKit.fields()
	f[keyServiceRadius] = r.ServiceRadiusKm
	return f
}

// Welcome is the role-selection state: initial, and re-entered after every
// completion, cancellation or reset.
type Welcome struct{}

type (
	FarmerName     struct{}
	FarmerVillage  struct{ FarmerIdentity }
	FarmerFarmSize struct{ FarmerHome }
	FarmerCrop     struct{ FarmerHolding }
	FarmerLocation struct{ FarmerCropping }
	FarmerConfirm  struct{ FarmerDraft }
)

type (
	ProviderName      struct{}
	ProviderServices  struct{ ProviderIdentity }
	ProviderCapacity  struct{ ProviderOffer }
	ProviderPrice     struct{ ProviderThroughput }
	ProviderEquipment struct{ ProviderPricing }
	ProviderRadius    struct{ ProviderKit }
	ProviderConfirm   struct{ ProviderDraft }
)

func (Welcome) Role() models.Role            { return models.RoleUnknown }
func (Welcome) StepName() string             { return StepWelcome }
func (Welcome) fields() models.SessionFields { return models.SessionFields{} }

func (FarmerName) Role() models.Role            { return models.RoleFarmer }
func (FarmerName) StepName() string             { return StepFarmerName }
func (FarmerName) fields() models.SessionFields { return models.SessionFields{} }

func (FarmerVillage) Role() models.Role  { return models.RoleFarmer }
func (FarmerVillage) StepName() string   { return StepFarmerVillage }
func (FarmerFarmSize) Role() models.Role { return models.RoleFarmer }
func (FarmerFarmSize) StepName() string  { return StepFarmerFarmSize }
func (FarmerCrop) Role() models.Role     { return models.RoleFarmer }
func (FarmerCrop) StepName() string      { return StepFarmerCrop }
func (FarmerLocation) Role() models.Role { return models.RoleFarmer }
func (FarmerLocation) StepName() string  { return StepFarmerLocation }
func (FarmerConfirm) Role() models.Role  { return models.RoleFarmer }
func (FarmerConfirm) StepName() string   { return StepFarmerConfirm }

func (ProviderName) Role() models.Role            { return models.RoleProvider }
func (ProviderName) StepName() string             { return StepProviderName }
func (ProviderName) fields() models.SessionFields { return models.SessionFields{} }

func (ProviderServices) Role() models.Role  { return models.RoleProvider }
func (ProviderServices) StepName() string   { return StepProviderServices }
func (ProviderCapacity) Role() models.Role  { return models.RoleProvider }
func (ProviderCapacity) StepName() string   { return StepProviderCapacity }
func (ProviderPrice) Role() models.Role     { return models.RoleProvider }
func (ProviderPrice) StepName() string      { return StepProviderPrice }
func (ProviderEquipment) Role() models.Role { return models.RoleProvider }
func (ProviderEquipment) StepName() string  { return StepProviderEquipment }
func (ProviderRadius) Role() models.Role    { return models.RoleProvider }
func (ProviderRadius) StepName() string     { return StepProviderRadius }
func (ProviderConfirm) Role() models.Role   { return models.RoleProvider }
func (ProviderConfirm) StepName() string    { return StepProviderConfirm }

// EncodeState returns the persisted form of s.
func EncodeState(s State) (models.Role, string, models.SessionFields) {
	return s.Role(), s.StepName(), s.fields()
}

// DecodeState converts a persisted session into a typed state. It reports
// false, together with Welcome, when the step is unknown, does not belong to
// role, or lacks an answer an earlier step must have collected.
func DecodeState(role models.Role, step string, fields models.SessionFields) (State, bool) {
	if step == "" || step == StepWelcome {
		return Welcome{}, role == models.RoleUnknown || role == ""
	}
	d := decoder{fields: fields}
	var s State
	switch role {
	case models.RoleFarmer:
		s = d.farmer(step)
	case models.RoleProvider:
		s = d.provider(step)
	}
	if s == nil || d.missing {
		return Welcome{}, false
	}
	return s, true
}

// decoder reads answers out of a session field map, remembering whether any
// required answer was absent or malformed.
type decoder struct {
	fields  models.SessionFields
	missing bool
}

func (d *decoder) text(key string, required bool) string {
	v, ok := d.fields[key]
	if !ok {
		d.missing = true
		return ""
	}
	s, ok := v.(string)
	if !ok || (required && strings.TrimSpace(s) == "") {
		d.missing = true
	}
	return s
}

func (d *decoder) number(key string) float64 {
	n, ok := toFloat(d.fields[key])
	if !ok {
		d.missing = true
	}
	return n
}

// toFloat accepts the numeric shapes a field may take after a JSON round
// trip or an in-memory store.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (d *decoder) farmerIdentity() FarmerIdentity {
	return FarmerIdentity{FullName: d.text(keyFullName, true)}
}

func (d *decoder) farmerHome() FarmerHome {
	return FarmerHome{FarmerIdentity: d.farmerIdentity(), Village: d.text(keyVillage, false)}
}

func (d *decoder) farmerHolding() FarmerHolding {
	return FarmerHolding{FarmerHome: d.farmerHome(), FarmSizeHa: d.number(keyFarmSize)}
}

func (d *decoder) farmerCropping() FarmerCropping {
	return FarmerCropping{FarmerHolding: d.farmerHolding(), CropType: d.text(keyCropType, false)}
}

func (d *decoder) farmerDraft() FarmerDraft {
	draft := FarmerDraft{FarmerCropping: d.farmerCropping()}
	lat, latOK := toFloat(d.fields[keyGPSLat])
	lng, lngOK := toFloat(d.fields[keyGPSLng])
	if latOK && lngOK {
		draft.Location = &Coordinates{Lat: lat, Lng: lng}
	}
	return draft
}

func (d *decoder) farmer(step string) State {
	switch step {
	case StepFarmerName:
		return FarmerName{}
	case StepFarmerVillage:
		return FarmerVillage{d.farmerIdentity()}
	case StepFarmerFarmSize:
		return FarmerFarmSize{d.farmerHome()}
	case StepFarmerCrop:
		return FarmerCrop{d.farmerHolding()}
	case StepFarmerLocation:
		return FarmerLocation{d.farmerCropping()}
	case StepFarmerConfirm:
		return FarmerConfirm{d.farmerDraft()}
	default:
		return nil
	}
}

func (d *decoder) providerIdentity() ProviderIdentity {
	return ProviderIdentity{FullName: d.text(keyFullName, true)}
}

func (d *decoder) providerOffer() ProviderOffer {
	return ProviderOffer{ProviderIdentity: d.providerIdentity(), ServicesOffered: d.text(keyServicesOffered, false)}
}

func (d *decoder) providerThroughput() ProviderThroughput {
	return ProviderThroughput{ProviderOffer: d.providerOffer(), WorkCapacityHaPerHour: d.number(keyWorkCapacity)}
}

func (d *decoder) providerPricing() ProviderPricing {
	return ProviderPricing{ProviderThroughput: d.providerThroughput(), BasePricePerHa: d.number(keyBasePrice)}
}

func (d *decoder) providerKit() ProviderKit {
	return ProviderKit{ProviderPricing: d.providerPricing(), EquipmentType: d.text(keyEquipmentType, false)}
}

func (d *decoder) providerDraft() ProviderDraft {
	return ProviderDraft{ProviderKit: d.providerKit(), ServiceRadiusKm: d.number(keyServiceRadius)}
}

func (d *decoder) provider(step string) State {
	switch step {
	case StepProviderName:
		return ProviderName{}
	case StepProviderServices:
		return ProviderServices{d.providerIdentity()}
	case StepProviderCapacity:
		return ProviderCapacity{d.providerOffer()}
	case StepProviderPrice:
		return ProviderPrice{d.providerThroughput()}
	case StepProviderEquipment:
		return ProviderEquipment{d.providerPricing()}
	case StepProviderRadius:
		return ProviderRadius{d.providerKit()}
	case StepProviderConfirm:
		return ProviderConfirm{d.providerDraft()}
	default:
		return nil
	}
}
