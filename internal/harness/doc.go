// Package harness runs template conformance scenarios.
//
// A scenario names a set of templates, a data context and the output the
// entry template must render to. The harness compiles and renders it the
// same way the CLI does and checks the result.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	entry: page.html
//	templates:
//	  page.html: |-
//	    <ul><li py:for="i in items">${i}</li></ul>
//	data:
//	  items: [a, b]
//	options:
//	  method: xml
//	expect:
//	  output: "<ul><li>a</li><li>b</li></ul>"
//	assertions:
//	  - type: select_count
//	    path: li
//	    count: 2
//
// Setting store: true loads the templates into an in-memory SQLite store
// and resolves them from there instead of from memory.
//
// # Assertion Types
//
//   - output_contains: The serialized output contains text
//   - output_excludes: The serialized output does not contain text
//   - select_count: A path pattern selects exactly count elements or text nodes
//   - select_text: The text selected by a path pattern equals text
//   - trace_count: The rendered stream has exactly count events of kind
//   - trace_order: Elements open in the listed order
//
// # Deterministic Testing
//
// Store timestamps come from testutil.StepClock and revision and render
// IDs from testutil.SequenceIDs, so two runs of one scenario produce the
// same trace for golden comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/for_loop.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
