package prompt

// Section headings shared by both templates.
const (
	HeadingHistory  = "**कुराकानीको इतिहास:**"
	HeadingQuestion = "**हालको प्रयोगकर्ताको प्रश्न:**"
	HeadingContext  = "**प्राप्त दस्तावेज डेटा:**"
)

// Speaker labels used when rendering history.
const (
	LabelUser      = "प्रयोगकर्ता"
	LabelAssistant = "सहायक"
)

// NoDataMessage replaces the retrieved-data section when retrieval found
// nothing relevant.
const NoDataMessage = "सम्बन्धित डेटा उपलब्ध छैन।"

const textIntro = `तपाईं जुनु हुनुहुन्छ, सरकारी कार्यालयका प्रक्रियाहरू बुझ्न र कार्यहरू पूरा गर्न सहयोग पुर्‍याउन नेपाली नागरिकलाई सहयोग गर्ने ज्ञानयुक्त सहायक। प्रयोगकर्ताको प्रश्न र अघिल्लो कुराकानी इतिहासबाट सम्बन्धित विवरणहरू प्रयोग गरी सटीक, संक्षिप्त, र सहायक उत्तर दिनुहोस्। स्पष्टताका लागि अघिल्लो कुराकानीलाई स्पष्ट रूपमा उल्लेख गर्न आवश्यक नभएसम्म उल्लेख नगर्नुहोस्। डेटाबेसमा भएका तथ्यहरूका आधारमा मात्र उत्तर दिनुहोस्।`

const voiceIntro = `तपाईं एउटा ज्ञानयुक्त सहायक हुनुहुन्छ जसले नेपाली भाषामा स्वाभाविक, स्पष्ट र प्रासङ्गिक उत्तरहरू प्रदान गर्नुहुन्छ।
आवाज कुराकानीका लागि तपाईंको उत्तरहरू स्वाभाविक र वार्तालाप शैलीमा हुनुपर्छ। चरणहरूको सट्टा,
तपाईं जानकारीलाई सहज प्रवाहको साथ साझा गर्नुहुन्छ, ताकि प्रयोगकर्ताले सहजै बुझ्न सकून्।`

// body is the FString section layout appended to each intro. Placeholders
// are filled by eino's FString formatter.
const body = `

---

` + HeadingHistory + `
{conversation_history}

` + HeadingQuestion + `
{user_question}

` + HeadingContext + `
{context}

---
`

// Template variable names.
const (
	varHistory  = "conversation_history"
	varQuestion = "user_question"
	varContext  = "context"
)

var templates = map[Mode]string{
	ModeText:  textIntro + body,
	ModeVoice: voiceIntro + body,
}
