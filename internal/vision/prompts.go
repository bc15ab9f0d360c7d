package vision

import "github.com/amitvarma/ai-loan-processor/internal/models"

const classificationPrompt = `You are an expert document classifier. Your task is to analyze the provided document image and identify its type.
Respond with only one of the following categories: 'Payslip', 'Tax Form', 'PAN Card', 'Aadhaar Card', 'Driving License', 'Bank Statement', 'Form 16', 'ITR', or 'Other'.
Do not add any other text or explanation.`

// extractionPrompts maps each taxonomy tag to its field-extraction
// instruction. Every instruction requests a value and a confidence score per
// field and a pure-JSON response with top-level keys "extracted_data" and
// "analysis".
var extractionPrompts = map[models.DocumentType]string{
	models.DocTypePayslip: `You are an expert AI assistant. From the provided payslip image, extract: "Applicant Name", "Gross Income", "Net Pay", "Total Taxes", and "Pay Period End Date".
For each field, provide the 'value' and a 'confidence' score between 0.0 and 1.0.
Provide your response as a single, valid JSON object with keys "extracted_data" and "analysis". Output ONLY the JSON object.`,

	models.DocTypeTaxForm: `You are an expert AI assistant. From the provided tax form image, extract: "Applicant Name", "Total Income", "Taxes Paid", and "Assessment Year".
For each field, provide the 'value' and a 'confidence' score between 0.0 and 1.0.
Provide your response as a single, valid JSON object with keys "extracted_data" and "analysis". Output ONLY the JSON object.`,

	models.DocTypePANCard: `You are an expert AI assistant. From the provided PAN Card image, extract: "Name", "Father's Name", "Date of Birth", and "PAN Number".
For each field, provide the 'value' and a 'confidence' score between 0.0 and 1.0.
Provide your response as a single, valid JSON object with keys "extracted_data" and "analysis". Output ONLY the JSON object.`,

	models.DocTypeAadhaarCard: `You are an expert AI assistant. From the provided Aadhaar Card image, extract: "Name", "Date of Birth", "Address", "Gender", and "Aadhaar Number" (the 12-digit number).
For each field, provide the 'value' and a 'confidence' score between 0.0 and 1.0.
Provide your response as a single, valid JSON object with keys "extracted_data" and "analysis". Output ONLY the JSON object.`,

	models.DocTypeDrivingLicense: `You are an expert AI assistant. From the provided Driving License image, extract: "Name", "Date of Birth", "Address", and "DL No" (the license number).
For each field, provide the 'value' and a 'confidence' score between 0.0 and 1.0.
Provide your response as a single, valid JSON object with keys "extracted_data" and "analysis". Output ONLY the JSON object.`,
}

// defaultExtractionPrompt covers tags without a dedicated instruction,
// including unrecognized classifier responses.
const defaultExtractionPrompt = `You are an expert AI assistant. From the provided document image, extract any personally identifiable information (PII) and key financial figures you can find.
For each field, provide the 'value' and a 'confidence' score between 0.0 and 1.0.
Provide your response as a single, valid JSON object with keys "extracted_data" and "analysis". Output ONLY the JSON object.`

func extractionPrompt(docType models.DocumentType) string {
	if p, ok := extractionPrompts[docType]; ok {
		return p
	}
	return defaultExtractionPrompt
}

const crossValidationPrompt = `You are a senior loan underwriter AI. You have been provided with extracted data from multiple documents for a single loan application.
Your task is to perform a final cross-validation check. Analyze all the data and identify any critical inconsistencies between the documents.
Specifically check for mismatches in "Applicant Name" and "Date of Birth".
Here is the data from all documents:
---
%s
---
Provide a summary of your findings as a single, valid JSON object with two keys: "overall_summary" (a string) and "validation_passed" (a boolean).
The final output must be ONLY the JSON object, with no extra text or markdown.`

const finalSummaryPrompt = `You are the lead AI underwriter. You have been given the complete data extracted from a loan application package.
Your task is to generate a final, comprehensive summary report.

Based on all the information provided below:
1. Write a concise, two-sentence overall summary of the applicant's financial profile and the quality of their documentation. This summary MUST NOT be empty.
2. List the most important financial metrics as a list of strings, formatted as "Metric Name: Value".
3. Consolidate all red flags and inconsistencies into a single list of strings.
4. Provide a final recommendation: 'Approve', 'Deny', or 'Manual Review Required'.

Here is all the data:
---
%s
---

Provide your response as a single, valid JSON object with four keys: "overall_summary", "key_financial_metrics", "consolidated_red_flags", and "final_recommendation".
The final output must be ONLY the JSON object.`
