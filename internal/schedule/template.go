package schedule

import "github.com/jalonhq/jalon/internal/types"

// StageTemplate is one entry of the ordered delivery plan. An entry is either
// offset-based (OffsetDays from the project start date) or trigger-based
// (TriggerStage names an earlier entry whose completion reschedules this one
// by DaysAfterTrigger). Trigger-based entries must appear after their trigger.
type StageTemplate struct {
	Stage       types.Stage
	Title       string
	Description string

	OffsetDays       int
	TriggerStage     types.Stage
	DaysAfterTrigger int

	VendorAssigned  bool
	VisibleToClient bool
	VisibleToVendor bool

	EventType types.EventType
	Color     types.EventColor
	Roles     []types.VisibilityTag
}

// DefaultTemplate is the standard six-stage delivery plan. The client
// feedback offset is configurable because it tracks the contractual review
// window, which varies per deployment; everything else is fixed.
func DefaultTemplate(daysToClientFeedback int) []StageTemplate {
	return []StageTemplate{
		{
			Stage:           types.StageAuditClient,
			Title:           "Audit client",
			Description:     "Recueil des besoins et validation du périmètre.",
			OffsetDays:      3,
			VisibleToClient: true,
			EventType:       types.EventDeadlineClient,
			Color:           types.ColorBlue,
			Roles:           []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient},
		},
		{
			Stage:           types.StageProductionV1,
			Title:           "Production V1 (Interne)",
			Description:     "Première version livrée par le prestataire.",
			OffsetDays:      10,
			VendorAssigned:  true,
			VisibleToVendor: true,
			EventType:       types.EventDeadlineInternal,
			Color:           types.ColorYellow,
			Roles:           []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityVendor},
		},
		{
			Stage:           types.StageClientImplementation,
			Title:           "Mise en place client",
			Description:     "Installation et prise en main côté client.",
			OffsetDays:      14,
			VisibleToClient: true,
			EventType:       types.EventDeadlineClient,
			Color:           types.ColorBlue,
			Roles:           []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient},
		},
		{
			Stage:           types.StageClientFeedback,
			Title:           "Retours client",
			Description:     "Fin de la période de retours du client.",
			OffsetDays:      daysToClientFeedback,
			VisibleToClient: true,
			EventType:       types.EventDeadlineClient,
			Color:           types.ColorBlue,
			Roles:           []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient},
		},
		{
			Stage:            types.StageProductionV2,
			Title:            "Production V2 (Correction)",
			Description:      "Corrections issues des retours client.",
			TriggerStage:     types.StageClientFeedback,
			DaysAfterTrigger: 5,
			VendorAssigned:   true,
			VisibleToVendor:  true,
			EventType:        types.EventDeadlineInternal,
			Color:            types.ColorYellow,
			Roles:            []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityVendor},
		},
		{
			Stage:            types.StageFinalVersion,
			Title:            "Version finale",
			Description:      "Livraison de la version finale au client.",
			TriggerStage:     types.StageProductionV2,
			DaysAfterTrigger: 3,
			VisibleToClient:  true,
			EventType:        types.EventDeadlineClient,
			Color:            types.ColorBlue,
			Roles:            []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient},
		},
	}
}
