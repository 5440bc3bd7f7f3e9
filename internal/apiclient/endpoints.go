package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// Ref carries the identifiers the upstream API returns from mutations.
type Ref struct {
	ID             string `json:"_id,omitempty"`
	PatientID      string `json:"patientId,omitempty"`
	AppointmentID  string `json:"appointmentId,omitempty"`
	VisitID        string `json:"visitId,omitempty"`
	PrescriptionID string `json:"prescriptionId,omitempty"`
}

// PatientLookup is the result of GET /patients/check/:phone.
type PatientLookup struct {
	Exists  bool            `json:"exists"`
	Patient json.RawMessage `json:"patient,omitempty"`
}

// EditablePatient is the result of GET /patients/:id/edit.
type EditablePatient struct {
	Patient      json.RawMessage `json:"patient"`
	CurrentVisit json.RawMessage `json:"currentVisit,omitempty"`
}

// ListResult is one page of a worklist.
type ListResult struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// Upstream paths.
const (
	PathPatients           = "/patients"
	PathClinics            = "/assigner/clinics"
	PathLabs               = "/assigner/labs"
	PathDoctorAppointments = "/doctors/appointments"
	PathMedicinesSearch    = "/medicines/search"
	PathTestsSearch        = "/tests/search"
	PathPrescriptions      = "/prescriptions"
)

// CheckPatient looks a patient up by phone number. A 404 is reported as
// "not found" rather than an error.
func (c *Client) CheckPatient(ctx context.Context, phone string) (*PatientLookup, error) {
	var out PatientLookup
	err := c.do(ctx, http.MethodGet, "/patients/check/"+url.PathEscape(phone), nil, nil, &out)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return &PatientLookup{Exists: false}, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePatient(ctx context.Context, payload interface{}) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodPost, PathPatients, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPatientForEdit(ctx context.Context, patientID string) (*EditablePatient, error) {
	var out EditablePatient
	if err := c.do(ctx, http.MethodGet, "/patients/"+url.PathEscape(patientID)+"/edit", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePatient(ctx context.Context, patientID string, payload interface{}) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodPut, "/patients/"+url.PathEscape(patientID)+"/edit", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAppointment records a visit for the patient identified by phone.
func (c *Client) CreateAppointment(ctx context.Context, phone string, payload interface{}) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodPost, "/patients/"+url.PathEscape(phone)+"/appointments", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateVisit(ctx context.Context, patientID, visitID string, payload interface{}) (*Ref, error) {
	var out Ref
	path := "/patients/" + url.PathEscape(patientID) + "/visit/" + url.PathEscape(visitID)
	if err := c.do(ctx, http.MethodPut, path, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateClinic(ctx context.Context, payload interface{}) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodPost, PathClinics, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateLab(ctx context.Context, payload interface{}) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodPost, PathLabs, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches one page of the worklist served at path.
func (c *Client) List(ctx context.Context, path string, q ListQuery) (*ListResult, error) {
	var out ListResult
	if err := c.do(ctx, http.MethodGet, path, q.values(), nil, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []json.RawMessage{}
	}
	return &out, nil
}

// Search runs a catalog typeahead query (medicines or tests).
func (c *Client) Search(ctx context.Context, path, query string) ([]json.RawMessage, error) {
	v := url.Values{}
	v.Set("q", query)
	var out []json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, v, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []json.RawMessage{}
	}
	return out, nil
}

// AddCatalogEntry creates a catalog entry through the search endpoint's POST.
func (c *Client) AddCatalogEntry(ctx context.Context, path string, entry interface{}) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, nil, entry, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePrescription(ctx context.Context, payload interface{}) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodPost, PathPrescriptions, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePrescription(ctx context.Context, id string, payload interface{}) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodPut, PathPrescriptions+"/"+url.PathEscape(id), nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
