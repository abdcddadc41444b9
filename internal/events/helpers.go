package events

import (
	"encoding/json"
	"fmt"
)

// SetIssueStateData sets the Data field with IssueStateData in a type-safe way.
func (e *Event) SetIssueStateData(data IssueStateData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert IssueStateData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetIssueStateData retrieves IssueStateData from the Data field.
func (e *Event) GetIssueStateData() (*IssueStateData, error) {
	var data IssueStateData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse IssueStateData: %w", err)
	}
	return &data, nil
}

// SetSettleTrialData sets the Data field with SettleTrialData in a type-safe way.
func (e *Event) SetSettleTrialData(data SettleTrialData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SettleTrialData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSettleTrialData retrieves SettleTrialData from the Data field.
func (e *Event) GetSettleTrialData() (*SettleTrialData, error) {
	var data SettleTrialData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SettleTrialData: %w", err)
	}
	return &data, nil
}

// SetCalibrationData sets the Data field with CalibrationData in a type-safe way.
func (e *Event) SetCalibrationData(data CalibrationData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CalibrationData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCalibrationData retrieves CalibrationData from the Data field.
func (e *Event) GetCalibrationData() (*CalibrationData, error) {
	var data CalibrationData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CalibrationData: %w", err)
	}
	return &data, nil
}

// SetDetectionData sets the Data field with DetectionData in a type-safe way.
func (e *Event) SetDetectionData(data DetectionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert DetectionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetDetectionData retrieves DetectionData from the Data field.
func (e *Event) GetDetectionData() (*DetectionData, error) {
	var data DetectionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse DetectionData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
