package convo

import (
	"fmt"
	"strings"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

const greetingText = "Thank you for calling the symptom helpline. " +
	"I can help figure out what kind of care you might need. " +
	"Please describe what you're experiencing."

const disclaimerText = "Please remember this is general guidance, not a " +
	"medical diagnosis. If your symptoms get worse, call back or seek care right away."

const fallbackRecommendationText = "I wasn't able to identify your symptoms " +
	"from our conversation. To be safe, please contact your doctor or an urgent " +
	"care clinic and describe what you're experiencing to them directly. " +
	disclaimerText

var fallbackQuestions = []string{
	"Can you tell me about any other symptoms you're experiencing?",
	"When did these symptoms start?",
	"Have your symptoms been getting better or worse?",
	"Is there anything else unusual you've noticed, even if it seems minor?",
}

func clarificationText(nothingExtracted bool) string {
	if nothingExtracted {
		return "I'm sorry, I didn't catch any symptoms there. " +
			"Could you describe how you're feeling? For example, pain, fever, or nausea."
	}
	return "I see. Could you tell me a bit more about how you're feeling?"
}

func emergencyText(rule *common.EmergencyRule) string {
	return fmt.Sprintf(
		"Based on what you've described, this could be a %s. %s",
		rule.SeverityLabel, rule.Directive,
	)
}

func followUpText(symptom *common.Entity) string {
	name := strings.ToLower(symptom.DisplayName)
	return fmt.Sprintf("Thank you. Are you also experiencing %s?", name)
}

func (e *Engine) recommendationText(top common.CandidateScore, urgency common.UrgencyLevel) string {
	name := top.ConditionID
	if entity := e.graph.Entity(top.ConditionID); entity != nil && entity.DisplayName != "" {
		name = entity.DisplayName
	}

	var advice string
	switch urgency {
	case common.UrgencyEmergency:
		advice = "This needs immediate attention. Please call 911 or go to the nearest emergency room now."
	case common.UrgencyUrgent:
		advice = "You should be seen today. Please visit an urgent care clinic or contact your doctor right away."
	default:
		advice = "This doesn't appear to need urgent care. Rest, stay hydrated, and see your doctor if it doesn't improve within a few days."
	}

	return fmt.Sprintf(
		"Based on your symptoms, the most likely explanation is %s. %s %s",
		name, advice, disclaimerText,
	)
}
