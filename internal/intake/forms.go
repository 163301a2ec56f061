package intake

import "sort"

const (
	FormLifestyle        = "lifestyle_questionnaire"
	FormHealthEvaluation = "health_evaluation"
)

var yesNo = []string{"Yes", "No"}

var lifestyleSchema = mustSchema(FormLifestyle, "Lifestyle Questionnaire",
	Field{Name: "fullName", Label: "Full name", Section: "About you", Kind: KindText},
	Field{Name: "weeksPostpartum", Label: "Weeks postpartum", Section: "About you", Kind: KindText},
	Field{Name: "breastfeeding", Label: "Currently breastfeeding", Section: "About you", Kind: KindEnum,
		Options: []string{"Yes, exclusively", "Yes, combination feeding", "No"}},
	Field{Name: "sleepHours", Label: "Average sleep per night", Section: "Recovery", Kind: KindEnum,
		Options: []string{"Less than 4 hours", "4-6 hours", "6-8 hours", "More than 8 hours"}},
	Field{Name: "stressLevel", Label: "Stress level", Section: "Recovery", Kind: KindEnum,
		Options: []string{"Low", "Moderate", "High"}},
	Field{Name: "hasChildcareSupport", Label: "Childcare support during workouts", Section: "Recovery", Kind: KindBool},
	Field{Name: "activityLevel", Label: "Activity level before pregnancy", Section: "Fitness", Kind: KindEnum,
		Options: []string{"Sedentary", "Lightly active", "Moderately active", "Very active"}},
	Field{Name: "fitnessGoals", Label: "Fitness goals", Section: "Fitness", Kind: KindMultiEnum,
		Options: []string{"Core and pelvic floor recovery", "Weight loss", "Strength", "Energy", "Return to running", "Stress relief"}},
	Field{Name: "preferredWorkoutTime", Label: "Preferred workout time", Section: "Fitness", Kind: KindEnum,
		Options: []string{"Morning", "Nap time", "Evening", "Varies"}},
	Field{Name: "dietaryRestrictions", Label: "Dietary restrictions", Section: "Nutrition", Kind: KindEnum, Options: yesNo},
	Field{Name: "dietaryDetails", Label: "Dietary restriction details", Section: "Nutrition", Kind: KindText, Multiline: true,
		ShowWhen: &Condition{Field: "dietaryRestrictions", Equals: []string{"Yes"}}},
	Field{Name: "additionalNotes", Label: "Anything else we should know", Section: "Notes", Kind: KindText, Multiline: true},
)

var healthEvaluationSchema = mustSchema(FormHealthEvaluation, "Health Evaluation",
	Field{Name: "fullName", Label: "Full name", Section: "Client", Kind: KindText},
	Field{Name: "dateOfBirth", Label: "Date of birth", Section: "Client", Kind: KindDate},
	Field{Name: "deliveryDate", Label: "Delivery date", Section: "Birth", Kind: KindDate},
	Field{Name: "deliveryType", Label: "Delivery type", Section: "Birth", Kind: KindEnum,
		Options: []string{"Vaginal", "Assisted vaginal", "C-Section"}},
	Field{Name: "cesareanIncisionHealed", Label: "Incision fully healed", Section: "Birth", Kind: KindBool,
		ShowWhen: &Condition{Field: "deliveryType", Equals: []string{"C-Section"}}},
	Field{Name: "pregnancyComplications", Label: "Pregnancy or birth complications", Section: "Birth", Kind: KindMultiEnum,
		Options: []string{"Gestational diabetes", "Preeclampsia", "Diastasis recti", "Perineal tear", "Hemorrhage", "None"}},
	Field{Name: "takingMedications", Label: "Taking medications", Section: "Health", Kind: KindEnum, Options: yesNo},
	Field{Name: "medicationDetails", Label: "Medication details", Section: "Health", Kind: KindText, Multiline: true,
		ShowWhen: &Condition{Field: "takingMedications", Equals: []string{"Yes"}}},
	Field{Name: "pelvicFloorSymptoms", Label: "Pelvic floor symptoms", Section: "Health", Kind: KindMultiEnum,
		Options: []string{"Leaking", "Heaviness", "Pain", "Urgency", "None"}},
	Field{Name: "clearanceDecision", Label: "Clearance decision", Section: "Clearance", Kind: KindEnum,
		Options: []string{"Cleared for full activity", "Cleared with restrictions/considerations", "Not cleared - refer to provider"}},
	Field{Name: "restrictionDetails", Label: "Restrictions", Section: "Clearance", Kind: KindText, Multiline: true,
		ShowWhen: &Condition{Field: "clearanceDecision", Equals: []string{"Cleared with restrictions/considerations"}}},
	Field{Name: "referralNotes", Label: "Referral notes", Section: "Clearance", Kind: KindText, Multiline: true,
		ShowWhen: &Condition{Field: "clearanceDecision", Equals: []string{"Not cleared - refer to provider"}}},
	Field{Name: "evaluatorNotes", Label: "Evaluator notes", Section: "Clearance", Kind: KindText, Multiline: true},
)

var registry = map[string]*Schema{
	FormLifestyle:        lifestyleSchema,
	FormHealthEvaluation: healthEvaluationSchema,
}

// Lookup returns the schema for a form type.
func Lookup(formType string) (*Schema, bool) {
	s, ok := registry[formType]
	return s, ok
}

// FormTypes lists the known form types, sorted.
func FormTypes() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
