package provider

import (
	"strings"
	"time"
	"unicode"
)

// AuthStyle selects how the credential is attached to outbound requests.
type AuthStyle string

const (
	AuthBearer AuthStyle = "bearer"
	AuthHeader AuthStyle = "header"
	AuthQuery  AuthStyle = "query"
)

// Table holds the declarative per-carrier behaviour consumed by the generic
// REST adapter: endpoint paths, auth placement and vocabulary maps. Carriers
// differ in data, not in code.
type Table struct {
	Carrier           string
	Endpoints         map[Kind]string
	Auth              AuthStyle
	AuthKey           string
	StatusMap         map[string]string
	EventMap          map[string]string
	DefaultRetryAfter time.Duration
}

// Endpoint returns the path template for the requested kind, defaulting to
// the container endpoint when the kind is absent or unsupported.
func (t Table) Endpoint(kind Kind) string {
	if path, ok := t.Endpoints[kind]; ok {
		return path
	}
	return t.Endpoints[KindContainer]
}

// MapStatus translates a provider-native status code onto the shared
// vocabulary. Unrecognised codes pass through with underscore-to-space
// formatting instead of failing.
func (t Table) MapStatus(raw string) string {
	return translate(t.StatusMap, raw)
}

// MapEvent translates a provider-native event code onto the shared vocabulary.
func (t Table) MapEvent(raw string) string {
	return translate(t.EventMap, raw)
}

func translate(table map[string]string, raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "unknown"
	}
	if mapped, ok := table[key]; ok {
		return mapped
	}
	return humanize(key)
}

func humanize(code string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return unicode.ToLower(r)
	}, code)
	return strings.Join(strings.Fields(cleaned), " ")
}

// Spec couples a provider descriptor template with its carrier table. The
// config layer fills in credentials and overrides before building adapters.
type Spec struct {
	Config Config
	Table  Table
}

// sharedStatus is the canonical status vocabulary common to all carriers.
const (
	statusBookingConfirmed = "booking confirmed"
	statusEmptyToShipper   = "empty to shipper"
	statusGateIn           = "gate in"
	statusLoaded           = "loaded on vessel"
	statusVesselDeparture  = "vessel departure"
	statusTransshipment    = "transshipment"
	statusVesselArrival    = "vessel arrival"
	statusDischarged       = "discharged"
	statusGateOut          = "gate out"
	statusDelivered        = "delivered"
	statusEmptyReturn      = "empty returned"
	statusInTransit        = "in transit"
)

// Builtins returns the provider set this service knows how to talk to. The
// returned specs carry no credentials; the config layer injects those from
// the environment and drops providers that end up without one.
func Builtins() []Spec {
	return []Spec{
		{
			Config: Config{
				Name:              "maersk",
				BaseURL:           "https://api.maersk.com/track",
				RequestsPerMinute: 60,
				RequestsPerHour:   1200,
				Reliability:       0.95,
				Timeout:           8 * time.Second,
				RetryAttempts:     3,
				RetryBaseDelay:    500 * time.Millisecond,
				RetryMaxDelay:     2 * time.Second,
				Kinds:             []Kind{KindContainer, KindBooking, KindBOL},
				Specialties:       []string{"transatlantic", "asia-europe"},
				Cost:              CostPremium,
			},
			Table: Table{
				Carrier: "Maersk",
				Endpoints: map[Kind]string{
					KindContainer: "/containers/{number}",
					KindBooking:   "/bookings/{number}",
					KindBOL:       "/bills-of-lading/{number}",
				},
				Auth:    AuthHeader,
				AuthKey: "Consumer-Key",
				StatusMap: map[string]string{
					"empty_container_to_shipper": statusEmptyToShipper,
					"gate_in":                    statusGateIn,
					"load":                       statusLoaded,
					"vessel_departure":           statusVesselDeparture,
					"transshipment":              statusTransshipment,
					"vessel_arrival":             statusVesselArrival,
					"discharge":                  statusDischarged,
					"gate_out":                   statusGateOut,
					"empty_container_return":     statusEmptyReturn,
					"delivered":                  statusDelivered,
				},
				EventMap: map[string]string{
					"stuffing":  "cargo stuffing",
					"stripping": "cargo stripping",
				},
				DefaultRetryAfter: 30 * time.Second,
			},
		},
		{
			Config: Config{
				Name:              "msc",
				BaseURL:           "https://api.msc.com/tracking/v2",
				RequestsPerMinute: 40,
				RequestsPerHour:   800,
				Reliability:       0.9,
				Timeout:           10 * time.Second,
				RetryAttempts:     3,
				RetryBaseDelay:    750 * time.Millisecond,
				RetryMaxDelay:     3 * time.Second,
				Kinds:             []Kind{KindContainer, KindBooking, KindBOL},
				Specialties:       []string{"mediterranean", "transatlantic"},
				Cost:              CostStandard,
			},
			Table: Table{
				Carrier: "MSC",
				Endpoints: map[Kind]string{
					KindContainer: "/containers/{number}/events",
					KindBooking:   "/bookings/{number}/events",
					KindBOL:       "/bl/{number}/events",
				},
				Auth:    AuthBearer,
				AuthKey: "Authorization",
				StatusMap: map[string]string{
					"export_received":   statusGateIn,
					"loaded_on_board":   statusLoaded,
					"sailed":            statusVesselDeparture,
					"transhipment":      statusTransshipment,
					"arrived":           statusVesselArrival,
					"discharged":        statusDischarged,
					"import_released":   statusGateOut,
					"empty_restitution": statusEmptyReturn,
				},
				EventMap:          map[string]string{},
				DefaultRetryAfter: 60 * time.Second,
			},
		},
		{
			// CMA CGM reports statuses in French.
			Config: Config{
				Name:              "cmacgm",
				BaseURL:           "https://api.cma-cgm.com/tracking",
				RequestsPerMinute: 30,
				RequestsPerHour:   600,
				Reliability:       0.88,
				Timeout:           10 * time.Second,
				RetryAttempts:     2,
				RetryBaseDelay:    time.Second,
				RetryMaxDelay:     4 * time.Second,
				Kinds:             []Kind{KindContainer, KindBooking, KindBOL},
				Specialties:       []string{"asia-europe", "africa"},
				Cost:              CostStandard,
			},
			Table: Table{
				Carrier: "CMA CGM",
				Endpoints: map[Kind]string{
					KindContainer: "/conteneurs/{number}",
					KindBooking:   "/reservations/{number}",
					KindBOL:       "/connaissements/{number}",
				},
				Auth:    AuthHeader,
				AuthKey: "KeyId",
				StatusMap: map[string]string{
					"reservation confirmee": statusBookingConfirmed,
					"mise a disposition":    statusEmptyToShipper,
					"entree au terminal":    statusGateIn,
					"chargement navire":     statusLoaded,
					"depart navire":         statusVesselDeparture,
					"transbordement":        statusTransshipment,
					"arrivee navire":        statusVesselArrival,
					"dechargement":          statusDischarged,
					"sortie du terminal":    statusGateOut,
					"livraison":             statusDelivered,
					"restitution du vide":   statusEmptyReturn,
				},
				EventMap: map[string]string{
					"en cours d'acheminement": statusInTransit,
					"douane":                  "customs clearance",
				},
				DefaultRetryAfter: 45 * time.Second,
			},
		},
		{
			Config: Config{
				Name:              "hapag",
				BaseURL:           "https://api.hlag.com/tracing",
				RequestsPerMinute: 50,
				RequestsPerHour:   1000,
				Reliability:       0.92,
				Timeout:           8 * time.Second,
				RetryAttempts:     3,
				RetryBaseDelay:    500 * time.Millisecond,
				RetryMaxDelay:     2 * time.Second,
				Kinds:             []Kind{KindContainer, KindBooking},
				Specialties:       []string{"transatlantic", "latin-america"},
				Cost:              CostPremium,
			},
			Table: Table{
				Carrier: "Hapag-Lloyd",
				Endpoints: map[Kind]string{
					KindContainer: "/events?equipmentReference={number}",
					KindBooking:   "/events?carrierBookingReference={number}",
				},
				Auth:    AuthHeader,
				AuthKey: "X-IBM-Client-Id",
				StatusMap: map[string]string{
					"gtin": statusGateIn,
					"load": statusLoaded,
					"depa": statusVesselDeparture,
					"tshp": statusTransshipment,
					"arri": statusVesselArrival,
					"disc": statusDischarged,
					"gtot": statusGateOut,
					"rtrn": statusEmptyReturn,
				},
				EventMap:          map[string]string{},
				DefaultRetryAfter: 30 * time.Second,
			},
		},
		{
			Config: Config{
				Name:              "cosco",
				BaseURL:           "https://api.coscoshipping.com/tracking",
				RequestsPerMinute: 30,
				RequestsPerHour:   500,
				Reliability:       0.85,
				Timeout:           12 * time.Second,
				RetryAttempts:     2,
				RetryBaseDelay:    time.Second,
				RetryMaxDelay:     5 * time.Second,
				Kinds:             []Kind{KindContainer, KindBooking, KindBOL},
				Specialties:       []string{"transpacific", "intra-asia"},
				Cost:              CostStandard,
			},
			Table: Table{
				Carrier: "COSCO",
				Endpoints: map[Kind]string{
					KindContainer: "/cargo/{number}",
					KindBooking:   "/booking/{number}",
					KindBOL:       "/bol/{number}",
				},
				Auth:    AuthQuery,
				AuthKey: "apiKey",
				StatusMap: map[string]string{
					"empty_pickup":    statusEmptyToShipper,
					"terminal_in":     statusGateIn,
					"vessel_loading":  statusLoaded,
					"etd_departed":    statusVesselDeparture,
					"ts_port":         statusTransshipment,
					"eta_arrived":     statusVesselArrival,
					"vessel_unload":   statusDischarged,
					"terminal_out":    statusGateOut,
					"cargo_delivered": statusDelivered,
					"empty_return":    statusEmptyReturn,
				},
				EventMap:          map[string]string{},
				DefaultRetryAfter: 120 * time.Second,
			},
		},
		{
			Config: Config{
				Name:              "evergreen",
				BaseURL:           "https://api.evergreen-line.com/track",
				RequestsPerMinute: 30,
				RequestsPerHour:   500,
				Reliability:       0.84,
				Timeout:           12 * time.Second,
				RetryAttempts:     2,
				RetryBaseDelay:    time.Second,
				RetryMaxDelay:     5 * time.Second,
				Kinds:             []Kind{KindContainer, KindBOL},
				Specialties:       []string{"transpacific", "intra-asia"},
				Cost:              CostStandard,
			},
			Table: Table{
				Carrier: "Evergreen",
				Endpoints: map[Kind]string{
					KindContainer: "/container/{number}",
					KindBOL:       "/bl/{number}",
				},
				Auth:    AuthHeader,
				AuthKey: "EG-Api-Key",
				StatusMap: map[string]string{
					"cy_received":   statusGateIn,
					"on_board":      statusLoaded,
					"departure":     statusVesselDeparture,
					"transship":     statusTransshipment,
					"arrival":       statusVesselArrival,
					"discharged":    statusDischarged,
					"cy_delivered":  statusGateOut,
					"door_delivery": statusDelivered,
				},
				EventMap:          map[string]string{},
				DefaultRetryAfter: 60 * time.Second,
			},
		},
		{
			// Paid multi-carrier aggregator, useful when the carrier guess is weak.
			Config: Config{
				Name:              "ship24",
				BaseURL:           "https://api.ship24.com/public/v1",
				RequestsPerMinute: 100,
				RequestsPerHour:   2000,
				Reliability:       0.93,
				Timeout:           6 * time.Second,
				RetryAttempts:     3,
				RetryBaseDelay:    500 * time.Millisecond,
				RetryMaxDelay:     2 * time.Second,
				Kinds:             []Kind{KindContainer, KindBooking, KindBOL},
				Specialties:       nil,
				Cost:              CostPremium,
			},
			Table: Table{
				Carrier: "",
				Endpoints: map[Kind]string{
					KindContainer: "/trackers/search/{number}",
					KindBooking:   "/trackers/search/{number}",
					KindBOL:       "/trackers/search/{number}",
				},
				Auth:              AuthBearer,
				AuthKey:           "Authorization",
				StatusMap:         map[string]string{},
				EventMap:          map[string]string{},
				DefaultRetryAfter: 10 * time.Second,
			},
		},
		{
			// Free-tier aggregator, first choice under cost optimisation.
			Config: Config{
				Name:              "searates",
				BaseURL:           "https://tracking.searates.com/api/v1",
				RequestsPerMinute: 10,
				RequestsPerHour:   100,
				Reliability:       0.75,
				Timeout:           15 * time.Second,
				RetryAttempts:     2,
				RetryBaseDelay:    time.Second,
				RetryMaxDelay:     5 * time.Second,
				Kinds:             []Kind{KindContainer, KindBOL},
				Specialties:       nil,
				Cost:              CostFree,
			},
			Table: Table{
				Carrier: "",
				Endpoints: map[Kind]string{
					KindContainer: "/tracking?number={number}",
					KindBOL:       "/tracking?number={number}&type=BL",
				},
				Auth:              AuthQuery,
				AuthKey:           "api_key",
				StatusMap:         map[string]string{},
				EventMap:          map[string]string{},
				DefaultRetryAfter: 300 * time.Second,
			},
		},
	}
}
