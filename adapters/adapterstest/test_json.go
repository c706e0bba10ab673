package adapterstest

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/vertamedia/vertamedia-pbs/adapters"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

// RunJSONBidderTest is a helper method intended to unit test Adapters.
//
// For each .json file in directory/exemplary and directory/supplemental, it reads a testSpec from
// the file and verifies that:
//
//   - adapter.BuildRequests() describes exactly the httpCalls[i].expectedRequest values, in order.
//   - adapter.InterpretResponse() on every httpCalls[i].mockResponse produces the expectedBids, in order.
//   - The errors of both calls match expectedBuildRequestsErrors and expectedInterpretResponseErrors.
//
// The "exemplary" directory holds the main use cases, and should stay lean. The "supplemental"
// directory holds edge cases such as malformed responses or bids without params.
func RunJSONBidderTest(t *testing.T, rootDir string, adapter adapters.Adapter) {
	runTests(t, filepath.Join(rootDir, "exemplary"), adapter, false)
	runTests(t, filepath.Join(rootDir, "supplemental"), adapter, true)
}

// runTests runs all the *.json files in a directory. If allowErrors is false and one of the test
// files expects errors from the adapter, the test fails.
func runTests(t *testing.T, directory string, adapter adapters.Adapter, allowErrors bool) {
	t.Helper()
	fileInfos, err := ioutil.ReadDir(directory)
	if err != nil {
		t.Fatalf("Failed to read folder %s: %v", directory, err)
	}
	for _, fileInfo := range fileInfos {
		if fileInfo.IsDir() || !strings.HasSuffix(fileInfo.Name(), ".json") {
			continue
		}
		filename := filepath.Join(directory, fileInfo.Name())
		spec, err := loadFile(filename)
		if err != nil {
			t.Fatalf("Failed to load contents of file %s: %v", filename, err)
		}
		if !allowErrors && spec.expectsErrors() {
			t.Fatalf("Exemplary tests should not expect errors. Move %s into the supplemental directory.", filename)
		}
		runSpec(t, filename, spec, adapter)
	}
}

func loadFile(filename string) (*testSpec, error) {
	specData, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to read file %s: %v", filename, err)
	}

	var spec testSpec
	if err := json.Unmarshal(specData, &spec); err != nil {
		return nil, fmt.Errorf("Failed to unmarshal JSON from file: %v", err)
	}
	return &spec, nil
}

func runSpec(t *testing.T, filename string, spec *testSpec, adapter adapters.Adapter) {
	t.Helper()
	actualReqs, errs := adapter.BuildRequests(spec.BidderRequest.Bids, &spec.BidderRequest)
	diffErrorLists(t, fmt.Sprintf("%s: BuildRequests", filename), errs, spec.BuildRequestsErrors)

	if len(actualReqs) != len(spec.HttpCalls) {
		t.Fatalf("%s: BuildRequests had wrong request count. Expected %d, got %d", filename, len(spec.HttpCalls), len(actualReqs))
	}
	for i := 0; i < len(actualReqs); i++ {
		diffJSONObjects(t, fmt.Sprintf("%s: httpCalls[%d].expectedRequest", filename, i), actualReqs[i], spec.HttpCalls[i].Request)
	}

	var bids []*adapters.BidResult
	var bidErrs []error
	for _, call := range spec.HttpCalls {
		theseBids, theseErrs := adapter.InterpretResponse(call.Response.ToResponseData(), &spec.BidderRequest)
		bids = append(bids, theseBids...)
		bidErrs = append(bidErrs, theseErrs...)
	}
	diffErrorLists(t, fmt.Sprintf("%s: InterpretResponse", filename), bidErrs, spec.InterpretResponseErrors)

	if len(bids) != len(spec.Bids) {
		t.Fatalf("%s: InterpretResponse returned wrong bid count. Expected %d, got %d", filename, len(spec.Bids), len(bids))
	}
	for i := 0; i < len(bids); i++ {
		diffJSONObjects(t, fmt.Sprintf("%s: expectedBids[%d]", filename, i), bids[i], spec.Bids[i])
	}
}

type testSpec struct {
	BidderRequest           pbs.BidderRequest `json:"mockBidderRequest"`
	HttpCalls               []httpCall        `json:"httpCalls"`
	Bids                    []json.RawMessage `json:"expectedBids"`
	BuildRequestsErrors     []string          `json:"expectedBuildRequestsErrors"`
	InterpretResponseErrors []string          `json:"expectedInterpretResponseErrors"`
}

func (spec *testSpec) expectsErrors() bool {
	return len(spec.BuildRequestsErrors) > 0 || len(spec.InterpretResponseErrors) > 0
}

type httpCall struct {
	Request  json.RawMessage `json:"expectedRequest"`
	Response httpResponse    `json:"mockResponse"`
}

type httpResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

func (resp *httpResponse) ToResponseData() *adapters.ResponseData {
	return &adapters.ResponseData{
		StatusCode: resp.Status,
		Body:       resp.Body,
	}
}

// diffErrorLists fails the test if the actual error messages differ from the expected ones.
func diffErrorLists(t *testing.T, description string, actual []error, expected []string) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Fatalf("%s had wrong error count. Expected %d, got %d (%v)", description, len(expected), len(actual), actual)
	}
	for i := 0; i < len(actual); i++ {
		if expected[i] != actual[i].Error() {
			t.Errorf(`%s error[%d] had wrong message. Expected "%s", got "%s"`, description, i, expected[i], actual[i].Error())
		}
	}
}

// diffJSONObjects compares the JSON form of actual with the expected JSON, and fails the test
// with a readable diff if they differ.
func diffJSONObjects(t *testing.T, description string, actual interface{}, expected json.RawMessage) {
	t.Helper()
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("%s failed to marshal actual value: %v", description, err)
	}
	diffJSON(t, description, actualJSON, expected)
}

// diffJSON compares two JSON byte arrays for structural equality. It will produce an error if either
// byte array is not actually JSON.
func diffJSON(t *testing.T, description string, actual []byte, expected []byte) {
	t.Helper()
	diff, err := gojsondiff.New().Compare(actual, expected)
	if err != nil {
		t.Fatalf("%s json diff failed. %v", description, err)
	}

	if diff.Modified() {
		var left interface{}
		if err := json.Unmarshal(actual, &left); err != nil {
			t.Fatalf("%s json did not match, but unmarshalling failed. %v", description, err)
		}
		printer := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
			ShowArrayIndex: true,
		})
		output, err := printer.Format(diff)
		if err != nil {
			t.Errorf("%s did not match, but diff formatting failed. %v", description, err)
		} else {
			t.Errorf("%s json did not match expected.\n\n%s", description, output)
		}
	}
}
