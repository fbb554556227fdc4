// Package prompt builds the task instructions sent to each pipeline stage.
// Every builder is a pure function of its inputs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/valpere/sctran/internal/audit"
	"github.com/valpere/sctran/internal/schema"
)

// Parser asks for the UniversalContractSchema JSON of a legal contract.
func Parser(contractText, sourceLang string) string {
	var sb strings.Builder
	sb.WriteString("Extract the structured data of the following legal contract.\n\n")
	if sourceLang != "" && sourceLang != "en" {
		sb.WriteString(fmt.Sprintf("The contract is written in language %q. Keep party names as written, but use English for descriptions.\n\n", sourceLang))
	}
	sb.WriteString("CONTRACT TEXT:\n")
	sb.WriteString(contractText)
	sb.WriteString(`

RULES:
1. Use the exact terminology of the contract: party names, amounts, dates, states and conditions.
2. Never invent generic placeholders such as "Party A" when the contract names the party.
3. contract_type is one of: sale, lease, employment, loan, service, license, nda, partnership, escrow, other.
4. Party role is one of: buyer, seller, lessor, lessee, employer, employee, lender, borrower,
   service_provider, client, licensor, licensee, other.
5. Amounts are plain numbers; put the currency in "currency".

Respond ONLY in JSON:
{
  "title": "...",
  "contract_type": "...",
  "summary": "...",
  "parties": [{"name": "...", "role": "...", "address": "..."}],
  "financial_terms": [{"description": "...", "amount": 0, "currency": "...", "payer": "...", "payee": "...", "schedule": "..."}],
  "dates": [{"description": "...", "date": "...", "duration": "..."}],
  "obligations": [{"party": "...", "description": "...", "condition": "...", "deadline": "..."}],
  "assets": [{"name": "...", "description": "...", "value": "...", "owner": "..."}],
  "conditions": ["..."],
  "governing_law": "..."
}`)
	return sb.String()
}

// Generator asks for a complete Solidity contract. contract may be nil when the
// parser reply could not be decoded; parsedRaw is then passed through as-is.
func Generator(contractText string, contract *schema.UniversalContractSchema, parsedRaw string) string {
	structured := parsedRaw
	if contract != nil {
		structured = contract.JSON()
	}
	return fmt.Sprintf(`Generate a complete Solidity smart contract that implements this legal agreement.

ORIGINAL CONTRACT:
%s

EXTRACTED STRUCTURE:
%s

REQUIREMENTS:
1. Use "pragma solidity ^0.8.0;" and an SPDX license identifier.
2. Name the contract, state variables, functions and events after the terms used in the agreement.
3. Implement EVERY function with full logic - no placeholders, no empty bodies.
4. Model the lifecycle of the agreement with an enum of states and enforce transitions.
5. Validate every input with require() and meaningful revert messages.
6. Restrict sensitive functions with access control modifiers for the relevant parties.
7. Emit an event for every state change and payment.
8. Follow the Checks-Effects-Interactions pattern for all transfers of value.
9. Every declared variable must be used.

Return ONLY the Solidity code in a single `+"```solidity"+` block.`, contractText, structured)
}

// Audit asks for a JSON security report of code.
func Audit(code string) string {
	return fmt.Sprintf(`Perform a security audit of this Solidity smart contract.

CONTRACT CODE:
`+"```solidity"+`
%s
`+"```"+`

CHECK FOR:
- Reentrancy and violations of Checks-Effects-Interactions
- Missing or incorrect access control
- Unchecked external calls and silent failures
- Integer overflow/underflow and precision loss
- Front-running, timestamp dependence, tx.origin authentication
- Denial of service through unbounded loops or failed transfers
- Unvalidated inputs and zero addresses

Rate the overall severity as one of: none, low, medium, high, critical.
Set "approved" to true only if the contract is safe to deploy as-is.
Give specific function or line references and concrete remediation steps.

Respond ONLY in JSON:
{
  "issues": ["..."],
  "recommendations": ["..."],
  "severity_level": "none|low|medium|high|critical",
  "approved": true
}`, code)
}

// Refine asks the refiner to fix every finding in report.
func Refine(code string, report audit.Report) string {
	issues := bulletList(report.Issues, "No specific issues listed")
	recs := bulletList(report.Recommendations, "No specific recommendations")
	severity := string(report.SeverityLevel)
	if severity == "" {
		severity = string(audit.SeverityUnknown)
	}

	return fmt.Sprintf(`Fix ALL security vulnerabilities in this Solidity smart contract.

CURRENT CONTRACT CODE:
`+"```solidity"+`
%s
`+"```"+`

SECURITY AUDIT FINDINGS (Severity: %s):
%s

REQUIRED FIXES:
%s

CRITICAL REQUIREMENTS:
1. Fix EVERY issue listed above - do not skip any vulnerability
2. Follow the Checks-Effects-Interactions pattern for all external calls
3. Add reentrancy guards (nonReentrant modifier) where needed
4. Ensure ALL state changes happen BEFORE external calls
5. Add proper access control (onlyOwner, role-based) on sensitive functions
6. Validate ALL inputs with require() statements - no silent failures
7. Check for zero addresses on address parameters
8. Ensure arithmetic operations are safe (Solidity ^0.8.0 has built-in overflow protection)
9. Preserve the original contract functionality while fixing security issues

Return ONLY the complete, fixed Solidity code with ALL vulnerabilities addressed.
Do not include explanations - just the corrected code.`, code, strings.ToUpper(severity), issues, recs)
}

// ABI asks for the Ethereum ABI JSON array of code.
func ABI(code string) string {
	return fmt.Sprintf(`Generate the complete Ethereum ABI for this Solidity contract.

CONTRACT CODE:
`+"```solidity"+`
%s
`+"```"+`

Include the constructor, every public and external function (with stateMutability),
every event (with indexed flags), custom errors, and receive/fallback if present.

Respond ONLY with the ABI as a JSON array.`, code)
}

// MCP asks for a Python MCP server exposing the deployed contract as tools.
func MCP(code, abi string) string {
	return fmt.Sprintf(`Generate a self-contained Python MCP server for interacting with this smart contract.

CONTRACT CODE:
`+"```solidity"+`
%s
`+"```"+`

CONTRACT ABI:
%s

REQUIREMENTS:
1. Use Web3.py; read RPC_URL, CONTRACT_ADDRESS and PRIVATE_KEY from the environment.
2. Expose one MCP tool per public function; view functions return decoded values.
3. State-changing tools build, sign and send transactions, wait for the receipt and return the hash and status.
4. Expose a tool to read recent events.
5. Handle and report errors instead of raising them to the client.

Return ONLY the Python code in a single `+"```python"+` block.`, code, abi)
}

// QualityEvaluation asks for a JSON comparison of generated code against a
// reference implementation of the same requirement.
func QualityEvaluation(requirement, generated, reference string) string {
	return fmt.Sprintf(`Evaluate how well a generated Solidity contract implements a requirement,
using a reference implementation as ground truth.

REQUIREMENT:
%s

GENERATED CONTRACT:
`+"```solidity"+`
%s
`+"```"+`

REFERENCE CONTRACT:
`+"```solidity"+`
%s
`+"```"+`

Score each dimension from 0 to 10:
- functional_completeness: every behaviour of the reference is present
- state_machine_fidelity: states and transitions match
- security: the generated code is at least as safe as the reference
- code_quality: naming, events, validation, readability

Respond ONLY in JSON:
{
  "functional_completeness": 0,
  "state_machine_fidelity": 0,
  "security": 0,
  "code_quality": 0,
  "overall": 0,
  "missing_features": ["..."],
  "notes": "..."
}`, requirement, generated, reference)
}

func bulletList(items []string, empty string) string {
	if len(items) == 0 {
		return "  - " + empty
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "  - " + it
	}
	return strings.Join(lines, "\n")
}
