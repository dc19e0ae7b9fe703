package prompt

import (
	"fmt"
	"sort"
)

// FormInstruction asks for a flat key -> text object. It is the default.
const FormInstruction = `This PDF contains a bank closure form.
Please precisely copy all the relevant information from the form across all pages.
Leave the field blank if there is no information in the corresponding field.
If the form does not contain bank closure information, simply return an empty JSON object.
Translate any non-English text to English.
Organize and return the extracted data in a JSON format with the following keys:
{
  "ACCOUNT_HOLDER_NAME": "", "MOBILE_NUMBER": "", "ACCOUNT_NUMBER": "",
  "TRANSFER_ACCOUNT_NUMBER": "", "SAVINGS_ACCOUNT_NUMBER": "", "EMAIL_ADDRESS": "",
  "PAY_ORDER_OR_DD": "", "BRANCH_CODE": "", "RECEIVERS_NAME": "", "CITY": "",
  "PIN_CODE": "", "FIRST_APPLICANT": "", "DATE": "", "BANKERS_CHEQUE_OR_DRAFT": "",
  "NAME_OF_BANK": "", "DISTRICT": "", "BRANCH": "", "STATE": "", "COUNTRY": "",
  "RECEIVER_NAME": "", "ADDRESS": "", "CREDIT_CARD_NUMBER": "",
  "REASON_FOR_CARD_CLOSURE": ""
}
Only return the extracted data as JSON. Do not include any additional text, explanations, or formatting.`

// SectionedInstruction asks for a list of {section, key, value, confidence} objects.
const SectionedInstruction = `You are a highly accurate document understanding system.

Your task is to extract all key-value pairs from the provided PDF document in a structured JSON format.
The PDF contains multiple sections such as CUSTOMER, COBUYER, DEALER INFORMATION, VEHICLE INFORMATION etc. Each section may repeat the same keys such as 'First Name', 'Last Name', 'Address', etc.

Instructions:
- For each key-value pair, include:
    - section: the section where the key-value appears (e.g., CUSTOMER, COBUYER, etc.)
    - key: the exact key text as it appears in the document
    - value: the exact corresponding value found next to the key
    - confidence: extraction confidence as a percentage from 1.00 to 100.00
- Do NOT hallucinate or guess values. If a value is missing, unreadable, or ambiguous, set value to "NOT_FOUND" and confidence to 0.
- For checkboxes, return value as 'SELECTED' or 'NOT_SELECTED'. If unclear, return 'NOT_SELECTED' and confidence 0.
- Maintain correct mappings. Each value must belong to the correct key and correct section.
- Avoid merging unrelated fields or mislabeling keys/values.
- Do not modify wording. Preserve the original key names and values as they appear in the document.

Output format:
[
  {"section": "CUSTOMER", "key": "First Name", "value": "John", "confidence": 98.12},
  {"section": "COBUYER", "key": "Address", "value": "123 Main Street, NY", "confidence": 95.45},
  {"section": "GUARANTOR", "key": "Checkbox - Terms Accepted", "value": "SELECTED", "confidence": 100.00},
  {"section": "CUSTOMER", "key": "Middle Name", "value": "NOT_FOUND", "confidence": 0.00}
]

Only return the structured JSON array as shown above, with no extra explanation, markdown or preamble.`

// RepairOrderInstruction asks for a nested repair-order object with line-item tables.
const RepairOrderInstruction = `You are a highly accurate document data extraction system.

Your task:
1. Carefully read the attached document (scanned PDF pages as images).
2. Extract the required fields and tables.
3. Return only a valid JSON object in the exact schema described below, with no extra text or explanations.
4. If a field is not present in the document, return it as null.
5. For tables:
   - Use the table name (found above the table in the document) as the JSON key.
   - Convert each row into an object.
   - Use the table header names as keys.
   - Wrap all rows inside a list.

JSON Schema to follow:
{
  "data": {
    "roNumber": string or null,
    "roDate": string (MM/DD/YYYY) or null,
    "servicer": string or null,
    "dateOfLoss": string (MM/DD/YYYY) or null,
    "vin": string or null,
    "invoiceAmount": string or null,
    "totalCharges": string or null,
    "taxRate": {"taxRate": string or null, "salesTax": string or null, "taxStates": string or null},
    "mileage": {"mileageIn": string or null, "mileageOut": string or null},
    "parts": [{"line": string or null, "quantity": string or null, "component": string or null, "partNumber": string or null, "unitPrice": string or null, "totalAmount": string or null, "description": string or null}],
    "labour": [{"line": string or null, "type": string or null, "hours": string or null, "rate": string or null, "total": string or null, "tech": string or null, "opcode": string or null}]
  }
}

Important notes:
- Ensure the output is strictly valid JSON (no trailing commas, no comments).
- Dates must be in MM/DD/YYYY format if present.
- Currency and numeric values must be captured as strings exactly as in the document.
- If multiple tables exist (like Parts, Labour, Taxes, Discounts), each table is a list of objects under its table name in lowercase.
- Do not invent fields not present in the schema.
- For any missing value, return null.`

var instructions = map[string]string{
	"form":         FormInstruction,
	"sectioned":    SectionedInstruction,
	"repair_order": RepairOrderInstruction,
}

// Instruction returns the built-in instruction registered under name.
func Instruction(name string) (string, error) {
	if text, ok := instructions[name]; ok {
		return text, nil
	}
	return "", fmt.Errorf("unknown extraction instruction %q (known: %v)", name, InstructionNames())
}

// InstructionNames lists the built-in instruction names in sorted order.
func InstructionNames() []string {
	names := make([]string, 0, len(instructions))
	for name := range instructions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
