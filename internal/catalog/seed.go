package catalog

import (
	"time"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

var seedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var seedRequirements = []models.Requirement{
	{
		ID:                 "ISO14971-4.1-01",
		Clause:             "4.1",
		Title:              "Risk management process",
		Text:               "The manufacturer shall establish, implement, document and maintain an ongoing process for identifying hazards, estimating and evaluating risks, controlling risks and monitoring the effectiveness of the controls throughout the life cycle of the device.",
		AcceptanceCriteria: "A documented risk management process exists and covers hazard identification, risk estimation, risk evaluation, risk control and production and post-production activities.",
		Priority:           "high",
		Hints:              []string{"risk management process", "life cycle", "hazard identification", "risk control", "monitoring"},
		TypicalArtifacts:   []string{"text"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-4.2-01",
		Clause:             "4.2",
		Title:              "Management responsibilities",
		Text:               "Top management shall provide evidence of its commitment to the risk management process by ensuring adequate resources, assigning competent personnel, defining a policy for establishing criteria for risk acceptability and reviewing the suitability of the process at planned intervals.",
		AcceptanceCriteria: "Evidence of management commitment, a documented risk acceptability policy and records of periodic process reviews are present.",
		Priority:           "medium",
		Hints:              []string{"top management", "policy", "risk acceptability", "review", "resources"},
		TypicalArtifacts:   []string{"text"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-4.3-01",
		Clause:             "4.3",
		Title:              "Competence of personnel",
		Text:               "Persons performing risk management tasks shall be competent on the basis of education, training, skills and experience appropriate to the tasks assigned to them, and records of their competence shall be maintained.",
		AcceptanceCriteria: "Competence requirements are defined for risk management roles and objective records of qualification are retained.",
		Priority:           "medium",
		Hints:              []string{"competence", "training", "qualification", "experience", "records"},
		TypicalArtifacts:   []string{"text", "table"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-4.4-01",
		Clause:             "4.4",
		Title:              "Risk management plan",
		Text:               "Risk management activities shall be planned. For the particular device being considered, the manufacturer shall establish and document a risk management plan that includes the scope of the activities, assignment of responsibilities, requirements for review, criteria for risk acceptability, verification activities and the method to evaluate the overall residual risk.",
		AcceptanceCriteria: "A risk management plan specific to the device exists and addresses scope, responsibilities, review requirements, acceptability criteria, verification and overall residual risk evaluation.",
		Priority:           "high",
		Hints:              []string{"risk management plan", "scope", "responsibilities", "criteria for risk acceptability", "verification"},
		TypicalArtifacts:   []string{"text", "table"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-4.5-01",
		Clause:             "4.5",
		Title:              "Risk management file",
		Text:               "The manufacturer shall establish and maintain a risk management file that provides traceability for each identified hazard to the risk analysis, the risk evaluation, the implementation and verification of risk control measures, and the evaluation of residual risks.",
		AcceptanceCriteria: "A risk management file exists and demonstrates traceability from each hazard through analysis, evaluation, controls and residual risk results.",
		Priority:           "high",
		Hints:              []string{"risk management file", "traceability", "hazard", "records"},
		TypicalArtifacts:   []string{"text", "cross_reference"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-5.2-01",
		Clause:             "5.2",
		Title:              "Intended use and reasonably foreseeable misuse",
		Text:               "The manufacturer shall document the intended use of the device and reasonably foreseeable misuse, considering the intended medical indication, patient population, part of the body or type of tissue interacted with, user profile, use environment and operating principle.",
		AcceptanceCriteria: "Intended use and reasonably foreseeable misuse are documented with indication, population, user and environment characteristics.",
		Priority:           "high",
		Hints:              []string{"intended use", "misuse", "patient population", "use environment", "user"},
		TypicalArtifacts:   []string{"text"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-5.4-01",
		Clause:             "5.4",
		Title:              "Identification of hazards and hazardous situations",
		Text:               "The manufacturer shall identify known and foreseeable hazards associated with the device in both normal and fault conditions, and shall consider the reasonably foreseeable sequences or combinations of events that can result in a hazardous situation.",
		AcceptanceCriteria: "A systematic hazard identification covering normal and fault conditions exists, with hazardous situations and their originating event sequences recorded.",
		Priority:           "high",
		Hints:              []string{"hazard", "hazardous situation", "fault condition", "sequence of events"},
		TypicalArtifacts:   []string{"table", "text"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-5.5-01",
		Clause:             "5.5",
		Title:              "Risk estimation",
		Text:               "For each identified hazardous situation, the manufacturer shall estimate the associated risks using available information or data. The severity of harm and the probability of occurrence of harm shall be recorded, and any system used for qualitative or quantitative categorization shall be documented.",
		AcceptanceCriteria: "Each hazardous situation carries a recorded risk estimate with severity and probability, and the categorization scheme is defined.",
		Priority:           "high",
		Hints:              []string{"risk estimation", "severity", "probability of occurrence", "harm"},
		TypicalArtifacts:   []string{"table", "figure"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-6.1-01",
		Clause:             "6.1",
		Title:              "Risk evaluation",
		Text:               "For each hazardous situation, the manufacturer shall evaluate the estimated risks against the criteria for risk acceptability defined in the risk management plan and shall record the results of this evaluation in the risk management file.",
		AcceptanceCriteria: "Estimated risks are compared against the plan's acceptability criteria and the outcomes are recorded.",
		Priority:           "high",
		Hints:              []string{"risk evaluation", "risk acceptability", "criteria", "acceptable"},
		TypicalArtifacts:   []string{"table", "text"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-7.1-01",
		Clause:             "7.1",
		Title:              "Risk control option analysis",
		Text:               "The manufacturer shall determine risk control measures appropriate for reducing risks to an acceptable level, applying in priority order inherently safe design and manufacture, protective measures in the device or the manufacturing process, and information for safety.",
		AcceptanceCriteria: "Risk control options are analysed in the required priority order and the selected measures are documented per hazardous situation.",
		Priority:           "high",
		Hints:              []string{"risk control", "inherently safe design", "protective measures", "information for safety"},
		TypicalArtifacts:   []string{"text", "table"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-8.1-01",
		Clause:             "8.1",
		Title:              "Overall residual risk evaluation",
		Text:               "After all risk control measures have been implemented and verified, the manufacturer shall evaluate the overall residual risk posed by the device in relation to the benefits of the intended use, using the method and the criteria defined in the risk management plan.",
		AcceptanceCriteria: "An overall residual risk evaluation exists, applies the plan's method and criteria, and includes a benefit-risk rationale where risks are not acceptable.",
		Priority:           "medium",
		Hints:              []string{"overall residual risk", "benefit-risk analysis", "residual risk", "disclosure"},
		TypicalArtifacts:   []string{"text"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-9.1-01",
		Clause:             "9.1",
		Title:              "Risk management review",
		Text:               "Prior to release for commercial distribution, the manufacturer shall review the execution of the risk management plan. The review shall ensure the plan has been appropriately implemented, the overall residual risk is acceptable and appropriate methods are in place to collect production and post-production information. The results shall be recorded as the risk management report.",
		AcceptanceCriteria: "A risk management report documents the pre-release review, the overall residual risk conclusion and the readiness of post-production data collection.",
		Priority:           "medium",
		Hints:              []string{"risk management review", "risk management report", "commercial distribution", "release"},
		TypicalArtifacts:   []string{"text"},
		CreatedAt:          seedTime,
	},
	{
		ID:                 "ISO14971-10.1-01",
		Clause:             "10.1",
		Title:              "Production and post-production monitoring",
		Text:               "The manufacturer shall establish, document and maintain a system to actively collect and review information about the device in the production and post-production phases, including information from users, service personnel, supply chain, publicly available information and the state of the art.",
		AcceptanceCriteria: "A documented system collects production and post-production information from the required sources and feeds it back into the risk management process.",
		Priority:           "high",
		Hints:              []string{"post-production", "production", "monitoring", "complaints", "feedback"},
		TypicalArtifacts:   []string{"text", "table"},
		CreatedAt:          seedTime,
	},
}
